package models

import "encoding/json"

// StringOrArray accepts either a JSON string or an array of strings and
// keeps the first value. The Frigate clip field has shipped as both.
type StringOrArray string

func (s *StringOrArray) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StringOrArray(single)
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		// Unrecognized shape is not fatal; the field just stays empty.
		*s = ""
		return nil
	}
	if len(many) > 0 {
		*s = StringOrArray(many[0])
	}
	return nil
}

func (s StringOrArray) String() string {
	return string(s)
}
