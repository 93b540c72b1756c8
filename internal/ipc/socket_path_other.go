//go:build !unix

package ipc

func validateSocketPath(path string) error {
	return nil
}
