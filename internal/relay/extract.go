package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedResponse means the model's text did not contain the expected JSON.
var ErrMalformedResponse = errors.New("malformed upstream response")

// StockNewsEntry is one element of the array the model is asked to produce.
type StockNewsEntry struct {
	StockName string   `json:"stock_name"`
	Bullets   []string `json:"bullets"`
}

// ExtractJSONArray returns the text from the first '[' to the last ']'
// inclusive. Anything around the array, such as prose or code fences, is dropped.
func ExtractJSONArray(text string) (string, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("%w: no JSON array found", ErrMalformedResponse)
	}
	return text[start : end+1], nil
}

// ParseStockNews extracts and decodes the stock news array from model output.
func ParseStockNews(text string) ([]StockNewsEntry, error) {
	raw, err := ExtractJSONArray(text)
	if err != nil {
		return nil, err
	}

	var entries []StockNewsEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return entries, nil
}
