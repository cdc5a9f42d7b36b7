// Package main mints development bearer tokens for the learnpath server,
// printing the signed token to stdout. With -order it mints a payment
// receipt for the upgrade endpoint instead.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/atinyakov/learnpath/internal/authtoken"
	"github.com/atinyakov/learnpath/internal/models"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run parses args and writes a token or receipt for the requested owner to out.
func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("tokengen", flag.ContinueOnError)
	secret := fs.String("secret", os.Getenv("JWT_SECRET"), "signing secret (defaults to $JWT_SECRET)")
	owner := fs.String("owner", "alice", "owner id placed in the token subject")
	tier := fs.String("tier", string(models.TierFree), "subscription tier: FREE | PRO")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime, 0 for no expiry")
	order := fs.String("order", "", "order id; mints a payment receipt instead of a bearer token")
	paymentSecret := fs.String("payment-secret", os.Getenv("PAYMENT_SECRET"), "receipt signing secret (defaults to $PAYMENT_SECRET)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *order != "" {
		receipt, err := authtoken.IssueReceipt(*paymentSecret, *owner, *order, *ttl)
		if err != nil {
			return fmt.Errorf("issue receipt: %w", err)
		}
		_, err = fmt.Fprintln(out, receipt)
		return err
	}

	token, err := authtoken.Issue(*secret, *owner, models.Tier(*tier), *ttl)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
