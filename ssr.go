package tiktok

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	universalScriptID = "__UNIVERSAL_DATA_FOR_REHYDRATION__"
	sigiScriptID      = "SIGI_STATE"
)

// scriptJSON returns the body of the <script id="..."> tag embedded in
// TikTok's server-rendered HTML.
func scriptJSON(htmlBody []byte, id string) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(htmlBody))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %v", ErrInvalidResponse, err)
	}
	sel := doc.Find(`script[id="` + id + `"]`)
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %s script tag not found", ErrInvalidResponse, id)
	}
	text := strings.TrimSpace(sel.First().Text())
	if text == "" {
		return nil, fmt.Errorf("%w: %s script tag is empty", ErrInvalidResponse, id)
	}
	return []byte(text), nil
}

// unmarshalPartial decodes data into v. A member of an unexpected type is
// left at its zero value instead of failing the whole blob.
func unmarshalPartial(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return nil
	}
	return err
}

// extractUniversalData finds and parses the __UNIVERSAL_DATA_FOR_REHYDRATION__
// JSON embedded in TikTok's server-rendered HTML.
func extractUniversalData(htmlBody []byte) (universalData, error) {
	jsonBytes, err := scriptJSON(htmlBody, universalScriptID)
	if err != nil {
		return universalData{}, err
	}

	var data universalData
	if err := unmarshalPartial(jsonBytes, &data); err != nil {
		return universalData{}, fmt.Errorf("unmarshal ssr data: %w", err)
	}
	return data, nil
}

// extractUserFromSSR pulls the Author from parsed SSR data.
func extractUserFromSSR(data universalData) (Author, error) {
	info := data.DefaultScope.UserDetail.UserInfo
	if info.User.UniqueID == "" {
		return Author{}, fmt.Errorf("%w: user data missing in ssr response", ErrNotFound)
	}
	return parseAuthor(info), nil
}

// extractItemFromSSR pulls the item document for videoID from a video page.
// It tries the rehydration blob first and falls back to SIGI_STATE. A page
// that parses but carries no item returns nil without error.
func extractItemFromSSR(htmlBody []byte, videoID string) (*ItemDocument, error) {
	data, uerr := extractUniversalData(htmlBody)
	if uerr == nil {
		if item := decodeItem(data.DefaultScope.VideoDetail.ItemInfo.ItemStruct); item != nil {
			return item, nil
		}
	}

	raw, err := scriptJSON(htmlBody, sigiScriptID)
	if err != nil {
		if uerr == nil {
			return nil, nil
		}
		return nil, uerr
	}
	var state sigiState
	if err := unmarshalPartial(raw, &state); err != nil {
		return nil, fmt.Errorf("unmarshal sigi state: %w", err)
	}
	return decodeItem(state.ItemModule[videoID]), nil
}
