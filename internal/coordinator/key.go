package coordinator

import (
	"fmt"
	"strings"
)

// Key derives the coordinator's internal storage key for a logical
// directory: name for shared directories, participant_id:name for private
// ones (spec.md §3). Colons and slashes are reserved in both identifiers to
// keep private keys unambiguous from shared ones.
func Key(participantID, name string, shared bool) (string, error) {
	if strings.ContainsAny(participantID, ":/") {
		return "", fmt.Errorf("participant_id %q must not contain ':' or '/'", participantID)
	}
	if strings.ContainsAny(name, ":/") {
		return "", fmt.Errorf("directory name %q must not contain ':' or '/'", name)
	}
	if shared {
		return name, nil
	}
	return participantID + ":" + name, nil
}
