package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/lattice-auth/lattice"
	"github.com/lattice-auth/lattice/internal/store"
)

func main() {
	app := &cli.App{
		Name: "lattice-helper",
		Commands: []*cli.Command{
			runGenerateJwks,
			runGenerateClientSecret,
			runCreateClient,
			runCreateUser,
		},
	}

	app.RunAndExitOnError()
}

var runGenerateJwks = &cli.Command{
	Name:  "generate-jwks",
	Usage: "generate a signing key and write it to jwks.json",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "prefix",
			Required: false,
		},
		&cli.StringFlag{
			Name:  "out",
			Value: "./jwks.json",
		},
	},
	Action: func(cmd *cli.Context) error {
		var prefix *string
		if cmd.String("prefix") != "" {
			inputPrefix := cmd.String("prefix")
			prefix = &inputPrefix
		}
		key, err := lattice.GenerateKey(prefix)
		if err != nil {
			return err
		}

		b, err := json.Marshal(key)
		if err != nil {
			return err
		}

		if err := os.WriteFile(cmd.String("out"), b, 0600); err != nil {
			return err
		}

		return nil
	},
}

var runGenerateClientSecret = &cli.Command{
	Name:  "generate-client-secret",
	Usage: "print a fresh client secret",
	Action: func(cmd *cli.Context) error {
		secret, err := lattice.GenerateClientSecret()
		if err != nil {
			return err
		}
		fmt.Println(secret)
		return nil
	},
}

var runCreateClient = &cli.Command{
	Name:  "create-client",
	Usage: "register a client and print its id and secret",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "db", Value: "lattice.db"},
		&cli.StringFlag{Name: "name", Required: true},
		&cli.StringFlag{Name: "type", Value: "INTERNAL"},
		&cli.StringFlag{Name: "origins"},
		&cli.StringFlag{Name: "scopes"},
		&cli.DurationFlag{Name: "ttl", Value: 365 * 24 * time.Hour},
	},
	Action: func(cmd *cli.Context) error {
		st, err := store.Open(cmd.String("db"))
		if err != nil {
			return err
		}

		secret, err := lattice.GenerateClientSecret()
		if err != nil {
			return err
		}

		client := &lattice.Client{
			ClientID:   uuid.NewString(),
			ClientName: cmd.String("name"),
			ClientType: cmd.String("type"),
			Secret:     secret,
			Status:     lattice.ClientStatusActive,
			ExpiresAt:  time.Now().Add(cmd.Duration("ttl")),
			Origins:    splitList(cmd.String("origins")),
			Scopes:     splitList(cmd.String("scopes")),
		}
		if err := st.CreateClient(context.Background(), client); err != nil {
			return err
		}

		fmt.Printf("clientId: %s\nclientSecret: %s\n", client.ClientID, secret)
		return nil
	},
}

var runCreateUser = &cli.Command{
	Name:  "create-user",
	Usage: "create a user account with a password login",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "db", Value: "lattice.db"},
		&cli.StringFlag{Name: "email", Required: true},
		&cli.StringFlag{Name: "username", Required: true},
		&cli.StringFlag{Name: "mobile"},
		&cli.StringFlag{Name: "password", Required: true},
		&cli.StringFlag{Name: "roles", Value: "user"},
	},
	Action: func(cmd *cli.Context) error {
		st, err := store.Open(cmd.String("db"))
		if err != nil {
			return err
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(cmd.String("password")), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		user := &lattice.User{
			Email:              cmd.String("email"),
			Username:           cmd.String("username"),
			Mobile:             cmd.String("mobile"),
			PasswordHash:       string(hash),
			Enabled:            true,
			Roles:              splitList(cmd.String("roles")),
			LastPasswordChange: time.Now(),
		}
		if err := st.CreateUser(context.Background(), user); err != nil {
			return err
		}

		fmt.Printf("userId: %s\n", user.UserID)
		return nil
	},
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
