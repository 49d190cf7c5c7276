package replicate

import (
	"bufio"
	"io"
	"strings"
)

type event struct {
	Name string
	ID   string
	Data string
}

// readEvents parses a text/event-stream body line by line as it arrives and
// calls emit for every complete event. It stops early when emit returns
// false. Multi-line data fields are joined with "\n".
func readEvents(r io.Reader, emit func(event) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		cur     event
		data    []string
		pending bool
	)
	flush := func() bool {
		if !pending {
			return true
		}
		cur.Data = strings.Join(data, "\n")
		ok := emit(cur)
		cur, data, pending = event{}, nil, false
		return ok
	}

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			if !flush() {
				return nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			cur.Name = value
			pending = true
		case "data":
			data = append(data, value)
			pending = true
		case "id":
			cur.ID = value
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	flush()
	return nil
}
