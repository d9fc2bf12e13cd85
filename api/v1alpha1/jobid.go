package v1alpha1

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// JobID is a sequential identifier assigned by the store at creation.
// On the wire it is rendered as a zero-padded 8-digit hex string, which
// is also the form accepted in URL paths.
type JobID uint64

func ParseJobID(s string) (JobID, error) {
	if len(s) != 8 {
		return 0, fmt.Errorf("invalid job id %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid job id %q: %w", s, err)
	}
	return JobID(v), nil
}

func (id JobID) String() string {
	return fmt.Sprintf("%08x", uint64(id))
}

func (id JobID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *JobID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// accept the numeric form as well
		var v uint64
		if numErr := json.Unmarshal(data, &v); numErr == nil {
			*id = JobID(v)
			return nil
		}
		return err
	}
	parsed, err := ParseJobID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
