package payment

import (
	"fmt"
	"strconv"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
)

// MaxMetadataValue is the longest metadata value the provider accepts.
const MaxMetadataValue = 500

// ChunkMetadata splits data across prefix_0..prefix_n-1 and records the
// count under prefix_parts.
func ChunkMetadata(md map[string]string, prefix, data string) {
	n := 0
	for len(data) > 0 {
		size := MaxMetadataValue
		if size > len(data) {
			size = len(data)
		}
		md[fmt.Sprintf("%s_%d", prefix, n)] = data[:size]
		data = data[size:]
		n++
	}
	md[prefix+"_parts"] = strconv.Itoa(n)
}

// JoinMetadata reverses ChunkMetadata.
func JoinMetadata(md map[string]string, prefix string) (string, error) {
	n, err := strconv.Atoi(md[prefix+"_parts"])
	if err != nil || n <= 0 {
		return "", apperr.New(apperr.KindValidation, "metadata %s missing", prefix)
	}
	var out []byte
	for i := 0; i < n; i++ {
		part, ok := md[fmt.Sprintf("%s_%d", prefix, i)]
		if !ok {
			return "", apperr.New(apperr.KindValidation, "metadata %s part %d missing", prefix, i)
		}
		out = append(out, part...)
	}
	return string(out), nil
}
