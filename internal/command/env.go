package command

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// WithoutVars returns environ minus every entry whose name is in names.
func WithoutVars(environ []string, names ...string) []string {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	out := make([]string, 0, len(environ))
	for _, kv := range environ {
		name, _, _ := strings.Cut(kv, "=")
		if _, ok := drop[name]; ok {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// Lookup returns the value of name in environ.
func Lookup(environ []string, name string) (string, bool) {
	for i := len(environ) - 1; i >= 0; i-- {
		k, v, ok := strings.Cut(environ[i], "=")
		if ok && k == name {
			return v, true
		}
	}
	return "", false
}

// InheritDescriptors makes the descriptors named by vars available to a
// child process. Each variable holds a comma-separated list of descriptor
// numbers. The descriptors are appended to files (a child sees files[i] as
// descriptor 3+i) and the variables are rewritten to the child's numbering.
// Variables that are unset, or whose value is not a descriptor list, are left
// untouched. Descriptors 0-2 are already shared and keep their number.
func InheritDescriptors(environ []string, files []*os.File, vars ...string) ([]string, []*os.File, error) {
	env := make([]string, len(environ))
	copy(env, environ)

	seen := make(map[int]int)
	for _, name := range vars {
		idx := -1
		for i := len(env) - 1; i >= 0; i-- {
			if k, _, ok := strings.Cut(env[i], "="); ok && k == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}
		_, value, _ := strings.Cut(env[idx], "=")
		fds, ok := parseDescriptorList(value)
		if !ok {
			continue
		}

		mapped := make([]string, len(fds))
		for j, fd := range fds {
			if fd <= 2 {
				mapped[j] = strconv.Itoa(fd)
				continue
			}
			child, dup := seen[fd]
			if !dup {
				f := os.NewFile(uintptr(fd), fmt.Sprintf("%s-%d", strings.ToLower(name), fd))
				if f == nil {
					return nil, nil, fmt.Errorf("descriptor %d named by %s is not valid", fd, name)
				}
				files = append(files, f)
				child = 2 + len(files)
				seen[fd] = child
			}
			mapped[j] = strconv.Itoa(child)
		}
		env[idx] = name + "=" + strings.Join(mapped, ",")
	}
	return env, files, nil
}

func parseDescriptorList(value string) ([]int, bool) {
	if value == "" {
		return nil, false
	}
	parts := strings.Split(value, ",")
	fds := make([]int, 0, len(parts))
	for _, p := range parts {
		fd, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || fd < 0 {
			return nil, false
		}
		fds = append(fds, fd)
	}
	return fds, true
}
