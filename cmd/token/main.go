// Command token mints an access token for local testing:
//
//	go run ./cmd/token -user 42 -role ADMIN
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/mikoajp/EventHub-sub001/internal/config"
	"github.com/mikoajp/EventHub-sub001/internal/utils"
)

func main() {
	user := flag.String("user", "", "user id (sub claim)")
	role := flag.String("role", "CUSTOMER", "role claim: CUSTOMER or ADMIN")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()
	if *user == "" {
		log.Fatal("-user is required")
	}

	secret := config.LoadJWTSecret()
	tok, err := utils.NewAccessToken(secret, *user, *role, *ttl)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(tok.Token)
}
