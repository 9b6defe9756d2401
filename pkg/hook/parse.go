package hook

import (
	"encoding/json"
	"fmt"
)

func parseStringList(raw []byte) ([]string, error) {
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("failed to decode hook tool output: %w", err)
	}
	return values, nil
}
