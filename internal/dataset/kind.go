package dataset

import (
	"fmt"
	"strings"
)

// Kind identifies a survey or geographic product.
type Kind string

const (
	KindENIGH Kind = "enigh"
	KindENCO  Kind = "enco"
	KindCenso Kind = "censo"
	KindSHP   Kind = "shp"
)

// Kinds lists every known kind in download order.
var Kinds = []Kind{KindENCO, KindCenso, KindSHP, KindENIGH}

// ParseKind accepts a kind name in any case.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown dataset kind %q", s)
}

func (k Kind) String() string {
	return string(k)
}
