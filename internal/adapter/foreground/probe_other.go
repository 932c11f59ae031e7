//go:build !windows

package foreground

import "context"

func foregroundProcessName(context.Context) (string, error) {
	return "", ErrUnsupported
}
