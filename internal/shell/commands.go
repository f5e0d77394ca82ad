package shell

import (
	"path/filepath"
)

// Command is one external program invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
}

func openCommand(goos, path string) Command {
	switch goos {
	case "darwin":
		return Command{Name: "open", Args: []string{path}}
	case "windows":
		return Command{Name: "explorer", Args: []string{path}}
	default:
		return Command{Name: "xdg-open", Args: []string{path}}
	}
}

// revealCommand selects path in the file manager where the platform supports
// it; elsewhere the containing directory is opened.
func revealCommand(goos, path string) Command {
	switch goos {
	case "darwin":
		return Command{Name: "open", Args: []string{"-R", path}}
	case "windows":
		return Command{Name: "explorer", Args: []string{"/select," + path}}
	default:
		return Command{Name: "xdg-open", Args: []string{filepath.Dir(path)}}
	}
}

func terminalCommand(goos, app, dir string) Command {
	switch goos {
	case "darwin":
		return Command{Name: "open", Args: []string{"-a", app, dir}}
	case "windows":
		return Command{Name: "cmd", Args: []string{"/c", "start", "", app}, Dir: dir}
	default:
		return Command{Name: app, Dir: dir}
	}
}
