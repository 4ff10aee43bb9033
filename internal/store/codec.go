package store

import "encoding/json"

// Documents are stored as JSON, matching the JSON the CRUD layer speaks
// end-to-end.

func marshalDoc(doc any) ([]byte, error) {
	return json.Marshal(doc)
}

func unmarshalDoc(data []byte, out any) error {
	return json.Unmarshal(data, out)
}
