package browserhost

import "encoding/base64"

func base64Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func decodeLinks(raw any) []LinkInfo {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]LinkInfo, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, LinkInfo{
			Text: stringField(m, "text"),
			Href: stringField(m, "href"),
		})
	}
	return out
}

func decodeMetadata(raw any) Metadata {
	m, ok := raw.(map[string]any)
	if !ok {
		return Metadata{}
	}
	return Metadata{
		Title:       stringField(m, "title"),
		URL:         stringField(m, "url"),
		Description: stringField(m, "description"),
	}
}

func decodeStrings(raw any) []string {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
