// Command mint-token prints a signed handshake token for a subject, using the
// same JWT settings as the gateway.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/Tyrowin/presence-gateway/internal/auth"
)

type tokenConfig struct {
	Secret string        `env:"JWT_SECRET,required"`
	Issuer string        `env:"JWT_ISSUER"`
	TTL    time.Duration `env:"JWT_TOKEN_TTL" envDefault:"2h"`
}

func main() {
	subject := flag.String("subject", "", "subject id to embed in the token")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to JWT_TOKEN_TTL)")
	flag.Parse()

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "mint-token: -subject is required")
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()

	var cfg tokenConfig
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "mint-token: %v\n", err)
		os.Exit(1)
	}
	if *ttl > 0 {
		cfg.TTL = *ttl
	}

	token, err := auth.NewJWTManager(cfg.Secret, cfg.Issuer, cfg.TTL).Generate(*subject)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mint-token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
