package service

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// BinaryPath is where install places the executable so the service unit and
// the operator's shell find the same binary.
const BinaryPath = "/usr/local/bin/netban"

// InstallBinary copies the running executable to BinaryPath. Copying onto
// itself (already installed, re-running install) is a no-op.
func InstallBinary() error {
	src, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating executable: %w", err)
	}
	if src == BinaryPath {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	// write to a temp name then rename so a running copy is never truncated
	tmp := BinaryPath + ".new"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("copying binary: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, BinaryPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("installing binary: %w", err)
	}

	log.Info("installed binary", "path", BinaryPath)
	return nil
}

// RemoveBinary deletes the installed executable. Already gone is fine.
func RemoveBinary() error {
	if err := os.Remove(BinaryPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", BinaryPath, err)
	}
	return nil
}
