package app

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
)

// NewDoctorCommand reports whether the host can run netban: required
// binaries, kernel modules and privilege. Read-only, safe to run anywhere.
func NewDoctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the host has everything netban needs",
		RunE: func(cmd *cobra.Command, args []string) error {
			type check struct {
				name string
				fn   func() (string, bool)
			}
			checks := []check{
				{"ipset (binary)", func() (string, bool) { return hasBinary("ipset") }},
				{"iptables (binary)", func() (string, bool) { return hasBinary("iptables") }},
				{"iptables-restore (binary)", func() (string, bool) { return hasBinary("iptables-restore") }},
				{"kernel module: ip_tables", func() (string, bool) { return hasModule("ip_tables") }},
				{"kernel module: ip_set", func() (string, bool) { return hasModule("ip_set") }},
				{"root privilege", func() (string, bool) {
					if os.Geteuid() == 0 {
						return "running as root", true
					}
					return "not root, mutating commands will fail", false
				}},
			}

			allOK := true
			for _, c := range checks {
				msg, ok := c.fn()
				status := "OK"
				if !ok {
					status = "MISSING"
					allOK = false
				}
				fmt.Printf(" - %-28s : %-7s %s\n", c.name, status, msg)
			}
			if !allOK {
				fmt.Println("\nsome checks failed; netban will fall back to blackhole routes where it can")
			}
			return nil
		},
	}
}

func hasBinary(name string) (string, bool) {
	p, err := exec.LookPath(name)
	if err != nil {
		return "not found in PATH", false
	}
	return p, true
}

func hasModule(mod string) (string, bool) {
	f, err := os.Open("/proc/modules")
	if err == nil {
		defer f.Close()
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			if strings.HasPrefix(sc.Text(), mod+" ") {
				return "present in /proc/modules", true
			}
		}
	}
	// built-in modules never show in /proc/modules
	if _, err := os.Stat("/sys/module/" + mod); err == nil {
		return "built in", true
	}
	return "not loaded", false
}
