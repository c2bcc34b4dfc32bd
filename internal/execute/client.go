package execute

import (
	"fmt"
	"strings"
)

// ClientFunc evaluates a client column from the values of its argument
// columns.
type ClientFunc func(args ...any) (any, error)

func defaultClientFuncs() map[string]ClientFunc {
	return map[string]ClientFunc{
		"ToString": toString,
		"Concat":   concat,
		"Format":   format,
	}
}

func toString(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expected 1 argument, got %d", len(args))
	}
	if args[0] == nil {
		return nil, nil
	}
	return fmt.Sprint(args[0]), nil
}

func concat(args ...any) (any, error) {
	var b strings.Builder
	for _, a := range args {
		if a != nil {
			fmt.Fprint(&b, a)
		}
	}
	return b.String(), nil
}

// format treats the first argument as a format string with {0}, {1}, ...
// placeholders for the remaining ones.
func format(args ...any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("missing format string")
	}
	f, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("format string is %T", args[0])
	}
	pairs := make([]string, 0, 2*(len(args)-1))
	for i, a := range args[1:] {
		s := ""
		if a != nil {
			s = fmt.Sprint(a)
		}
		pairs = append(pairs, fmt.Sprintf("{%d}", i), s)
	}
	return strings.NewReplacer(pairs...).Replace(f), nil
}
