// Package toolruntime composes the tool allowlist/override policy with the
// executable path resolution subprocess tools need (spec §4.7).
package toolruntime

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// SearchPaths builds the effective PATH for resolving subprocess tool
// executables: configured search directories first, then a descending
// chain of well-known locations, with the process's inherited PATH last.
// Grounded on the original SearchPaths builder/with_npm/resolve sequence.
type SearchPaths struct {
	dirs []string
	seen map[string]bool
}

// NewSearchPaths seeds a SearchPaths with the session's configured search
// directories (tilde-expanded), then `~/.local/bin`, then OS system bins
// (`/usr/local/bin` on all unix, plus Homebrew/MacPorts paths on macOS).
func NewSearchPaths(configured []string) *SearchPaths {
	sp := &SearchPaths{seen: make(map[string]bool)}
	for _, dir := range configured {
		sp.add(expandTilde(dir))
	}
	sp.add(expandTilde("~/.local/bin"))
	if runtime.GOOS != "windows" {
		sp.add("/usr/local/bin")
	}
	if runtime.GOOS == "darwin" {
		sp.add("/opt/homebrew/bin")
		sp.add("/opt/local/bin")
	}
	return sp
}

func (sp *SearchPaths) add(dir string) {
	if dir == "" || sp.seen[dir] {
		return
	}
	sp.seen[dir] = true
	sp.dirs = append(sp.dirs, dir)
}

// WithNpm appends an npm global bin directory and a Node.js directory:
// the system `node` installation's directory if one is on PATH, otherwise
// the embedded Node.js directory next to the running executable, if present.
func (sp *SearchPaths) WithNpm() *SearchPaths {
	home, _ := os.UserHomeDir()
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			sp.add(filepath.Join(appData, "npm"))
		}
	} else if home != "" {
		sp.add(filepath.Join(home, ".npm-global", "bin"))
	}

	if dir := detectNodeDir(); dir != "" {
		sp.add(dir)
	} else if dir := EmbeddedNodeDir(); dir != "" {
		sp.add(dir)
	}
	return sp
}

// detectNodeDir returns the parent directory of the `node` binary found on
// the inherited PATH, or "" if node isn't installed.
func detectNodeDir() string {
	nodePath, err := exec.LookPath("node")
	if err != nil {
		return ""
	}
	abs, err := filepath.Abs(nodePath)
	if err != nil {
		return ""
	}
	return filepath.Dir(abs)
}

// EmbeddedNodeDir looks for a bundled platform-specific Node.js directory
// next to the running executable (Electron-style packaging layouts), and
// returns the first candidate that actually contains an `npx`[.cmd].
func EmbeddedNodeDir() string {
	exePath, err := os.Executable()
	if err != nil {
		return ""
	}
	exeDir := filepath.Dir(exePath)

	platformDir := platformNodeDir()
	if platformDir == "" {
		return ""
	}

	candidates := []string{
		filepath.Join(exeDir, "resources", "nodejs", platformDir),
		filepath.Join(exeDir, "nodejs", platformDir),
	}
	if parent := filepath.Dir(exeDir); parent != exeDir {
		candidates = append(candidates,
			filepath.Join(parent, "Resources", "nodejs", platformDir),
			filepath.Join(parent, "src", "nodejs", platformDir),
		)
	}

	npxName := "npx"
	if runtime.GOOS == "windows" {
		npxName = "npx.cmd"
	}
	for _, dir := range candidates {
		if _, err := os.Stat(filepath.Join(dir, npxName)); err == nil {
			return dir
		}
	}
	return ""
}

func platformNodeDir() string {
	switch runtime.GOOS + "-" + runtime.GOARCH {
	case "windows-amd64", "windows-arm64":
		return "win-x64"
	case "darwin-amd64":
		return "darwin-x64"
	case "darwin-arm64":
		return "darwin-arm64"
	case "linux-amd64":
		return "linux-x64"
	case "linux-arm64":
		return "linux-arm64"
	default:
		return ""
	}
}

// Path joins the accumulated search directories with the process's
// inherited PATH, search directories first.
func (sp *SearchPaths) Path() string {
	all := append([]string{}, sp.dirs...)
	if inherited := os.Getenv("PATH"); inherited != "" {
		all = append(all, filepath.SplitList(inherited)...)
	}
	return strings.Join(all, string(os.PathListSeparator))
}

// Resolve finds name's absolute path by searching the accumulated
// directories in order, then falling back to the inherited PATH via
// exec.LookPath. It returns an error if name cannot be found anywhere.
func (sp *SearchPaths) Resolve(name string) (string, error) {
	candidates := []string{name}
	if runtime.GOOS == "windows" && filepath.Ext(name) == "" {
		candidates = append(candidates, name+".exe", name+".cmd")
	}

	for _, dir := range sp.dirs {
		for _, candidate := range candidates {
			full := filepath.Join(dir, candidate)
			if info, err := os.Stat(full); err == nil && !info.IsDir() && isExecutable(info) {
				return full, nil
			}
		}
	}

	if resolved, err := exec.LookPath(name); err == nil {
		return resolved, nil
	}

	return "", fmt.Errorf("toolruntime: could not resolve command %q: file does not exist", name)
}

func isExecutable(info os.FileInfo) bool {
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0111 != 0
}

func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
