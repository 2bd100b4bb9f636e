package identity

// Space keys must satisfy the strictest backend's collection-name rules:
// 3-512 characters from [A-Za-z0-9._-], starting and ending alphanumeric.

const maxSpaceKeyLen = 512

// SpaceKey builds the collection name for a provider/model/purpose
// triple. Vectors computed by different providers, models or purposes
// must never share a collection; the space key is the only discriminator.
func SpaceKey(provider, model, embedType string) string {
	return sanitizeSpaceKey(provider + "__" + model + "__" + embedType)
}

func sanitizeSpaceKey(key string) string {
	if key == "" {
		return "000"
	}

	runes := []rune(key)
	for i, r := range runes {
		if !isAlnum(r) && r != '.' && r != '_' && r != '-' {
			runes[i] = '_'
		}
	}

	if len(runes) > maxSpaceKeyLen {
		runes = runes[:maxSpaceKeyLen]
	}

	if !isAlnum(runes[0]) {
		runes[0] = '0'
	}
	if !isAlnum(runes[len(runes)-1]) {
		runes[len(runes)-1] = '0'
	}

	for len(runes) < 3 {
		runes = append(runes, '0')
	}

	return string(runes)
}

func isAlnum(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
