// utilitário pequeno para formatação consistente de valores numéricos em headers.
// strconv.FormatFloat evita notação científica em valores comuns.

package reservoir

import "strconv"

func formatInt(v int) string { return strconv.Itoa(v) }

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
