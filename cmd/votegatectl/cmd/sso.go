// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package cmd

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/taibuivan/votegate/internal/platform/sec"
	"github.com/taibuivan/votegate/internal/sso"
)

type ssoEnv struct {
	SharedSecret string `env:"SSO_SHARED_SECRET,notEmpty"`
}

var signInput struct {
	subject   string
	username  string
	email     string
	firstName string
	lastName  string
	country   string
	gender    string
	age       int
	ttl       time.Duration
	nonce     string
	baseURL   string
}

var ssoCmd = &cobra.Command{
	Use:   "sso",
	Short: "SSO assertion tools",
}

var ssoSignCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign an assertion the way the community platform does",
	Long: `Signs an assertion with SSO_SHARED_SECRET and prints it. With --callback-url
the full callback URL is printed instead, ready to open in a browser.`,
	Args: cobra.NoArgs,
	RunE: runSign,
}

func init() {
	flags := ssoSignCmd.Flags()
	flags.StringVar(&signInput.subject, "subject", "", "Community user id (required)")
	flags.StringVar(&signInput.username, "username", "", "Community username")
	flags.StringVar(&signInput.email, "email", "", "User email (required)")
	flags.StringVar(&signInput.firstName, "first-name", "", "First name")
	flags.StringVar(&signInput.lastName, "last-name", "", "Last name")
	flags.StringVar(&signInput.country, "country", "", "Country")
	flags.StringVar(&signInput.gender, "gender", "", "Gender")
	flags.IntVar(&signInput.age, "age", 0, "Age, omitted when 0")
	flags.DurationVar(&signInput.ttl, "ttl", 5*time.Minute, "Assertion lifetime")
	flags.StringVar(&signInput.nonce, "nonce", "", "Nonce, random when empty")
	flags.StringVar(&signInput.baseURL, "callback-url", "", "Print <callback-url>?token=<assertion>")
	_ = ssoSignCmd.MarkFlagRequired("subject")
	_ = ssoSignCmd.MarkFlagRequired("email")

	ssoCmd.AddCommand(ssoSignCmd)
	rootCmd.AddCommand(ssoCmd)
}

func runSign(cmd *cobra.Command, args []string) error {
	var cfg ssoEnv
	if err := loadEnv(&cfg); err != nil {
		return err
	}

	verifier, err := sso.NewVerifier(cfg.SharedSecret, 0, nil)
	if err != nil {
		return err
	}

	nonce := signInput.nonce
	if nonce == "" {
		if nonce, err = sec.GenerateSecureToken(16); err != nil {
			return err
		}
	}

	now := time.Now()
	claims := sso.Claims{
		UserID:    sso.FlexString(signInput.subject),
		Username:  signInput.username,
		Email:     signInput.email,
		FirstName: signInput.firstName,
		LastName:  signInput.lastName,
		Country:   signInput.country,
		Gender:    signInput.gender,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(signInput.ttl).Unix(),
		Nonce:     nonce,
	}
	if signInput.age > 0 {
		claims.Age = sso.Age(signInput.age)
	}

	token, err := verifier.Sign(claims)
	if err != nil {
		return err
	}

	if signInput.baseURL == "" {
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	}

	target, err := url.Parse(signInput.baseURL)
	if err != nil {
		return fmt.Errorf("votegatectl: invalid --callback-url: %w", err)
	}
	query := target.Query()
	query.Set("token", token)
	target.RawQuery = query.Encode()

	fmt.Fprintln(cmd.OutOrStdout(), target.String())
	return nil
}
