package reflection

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spaghettifunk/prism/engine/core"
)

// splitPath turns "a.b[2][1].c" into the child keys used by the layout:
// "a", "b", "b[2]", "b[2][1]", "c".
func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", core.ErrUniformNotFound)
	}
	var keys []string
	for _, segment := range strings.Split(path, ".") {
		open := strings.IndexByte(segment, '[')
		name := segment
		if open >= 0 {
			name = segment[:open]
		}
		if name == "" {
			return nil, fmt.Errorf("%w: malformed path `%s`", core.ErrUniformNotFound, path)
		}
		keys = append(keys, name)
		if open < 0 {
			continue
		}

		key := name
		rest := segment[open:]
		for rest != "" {
			end := strings.IndexByte(rest, ']')
			if rest[0] != '[' || end < 2 {
				return nil, fmt.Errorf("%w: malformed index in `%s`", core.ErrUniformNotFound, path)
			}
			index, err := strconv.ParseUint(rest[1:end], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: bad index `%s` in `%s`", core.ErrUniformNotFound, rest[1:end], path)
			}
			key = elementName(key, uint32(index))
			keys = append(keys, key)
			rest = rest[end+1:]
		}
	}
	return keys, nil
}

// elementName names the i-th element of an array member.
func elementName(name string, i uint32) string {
	return fmt.Sprintf("%s[%d]", name, i)
}
