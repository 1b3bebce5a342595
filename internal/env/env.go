// Package env lê configuração de variáveis de ambiente com valores padrão.
// Valores inválidos caem no padrão, como os helpers do gateway sempre fizeram.
package env

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// LoadDotenv carrega .env (ou os arquivos dados) sem sobrescrever o ambiente.
// Arquivo ausente não é erro.
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if os.IsNotExist(errors.Cause(err)) {
				continue
			}
			return errors.Wrapf(err, "load %s", f)
		}
	}
	return nil
}

func IsSet(k string) bool {
	v, ok := os.LookupEnv(k)
	return ok && strings.TrimSpace(v) != ""
}

func String(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func Int(k string, def int) int {
	if v, ok := LookupInt(k); ok {
		return v
	}
	return def
}

// LookupInt diz se k está definido com um inteiro válido.
func LookupInt(k string) (int, bool) {
	if !IsSet(k) {
		return 0, false
	}
	i, err := cast.ToIntE(strings.TrimSpace(os.Getenv(k)))
	if err != nil {
		return 0, false
	}
	return i, true
}

func Float(k string, def float64) float64 {
	if !IsSet(k) {
		return def
	}
	f, err := cast.ToFloat64E(strings.TrimSpace(os.Getenv(k)))
	if err != nil {
		return def
	}
	return f
}

func Bool(k string, def bool) bool {
	if !IsSet(k) {
		return def
	}
	b, err := cast.ToBoolE(strings.TrimSpace(os.Getenv(k)))
	if err != nil {
		return def
	}
	return b
}

// Duration aceita "3s", "250ms"... Número sem unidade é lido como nanossegundos.
func Duration(k string, def time.Duration) time.Duration {
	if !IsSet(k) {
		return def
	}
	d, err := cast.ToDurationE(strings.TrimSpace(os.Getenv(k)))
	if err != nil {
		return def
	}
	return d
}
