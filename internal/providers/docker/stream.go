package docker

import (
	stdjson "encoding/json"
	"fmt"
	"io"
	"strings"

	log "serverless/internal/log"

	dockertypes "github.com/docker/docker/api/types"
	jsonmessage "github.com/moby/moby/pkg/jsonmessage"
	term "github.com/moby/term"
)

// displayJSONMessagesStream displays a json message stream from `in` to `out`.
// When `out` is a terminal progress lines are rewritten in place.
func displayJSONMessagesStream(in io.Reader, out io.Writer, l log.Logger) error {
	_, isTerminal := term.GetFdInfo(out)
	// the standard decoder keeps the stream framing of the Docker API
	dec := stdjson.NewDecoder(in)
	status := ""
	progress := false
	print := func(msg string) {
		if out != nil {
			fmt.Fprint(out, msg)
		}
	}
	for {
		var jm jsonmessage.JSONMessage
		if err := dec.Decode(&jm); err != nil {
			if err == io.EOF {
				break
			}
			err = fmt.Errorf("Error decoding Docker API message: %s", err.Error())
			l.Error(err)
			return err
		}
		if jm.Error != nil {
			if jm.Error.Code == 401 {
				return fmt.Errorf("Docker API authentication error: %s", jm.ErrorMessage)
			}
			return jm.Error
		}
		if stream := strings.TrimSpace(jm.Stream); stream != "" {
			l.Debug(stream)
			print(stream + "\n")
		}
		if jm.Status != "" {
			if isTerminal {
				if jm.Status != status && progress {
					progress = false
					print("\n")
				}
				if jm.ProgressMessage != "" {
					print(jm.Status + " " + jm.ProgressMessage + "\r")
					progress = true
				}
			} else if jm.Status != status {
				print(jm.Status + "\n")
			}
			l.Debug(jm.Status)
			status = jm.Status
		}
		if jm.Aux != nil {
			var result dockertypes.BuildResult
			if err := json.Unmarshal(*jm.Aux, &result); err != nil {
				err = fmt.Errorf("Failed to parse AUX message: %s", err.Error())
				l.Error(err)
				return err
			}
			l.Debug("Image checksum " + result.ID)
		}
	}
	if progress {
		print("\n")
	}
	return nil
}
