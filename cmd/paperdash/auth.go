package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pavelanni/paperdash/internal/api"
)

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the backend and remember the token",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			username := a.v.GetString("username")
			password := a.v.GetString("password")
			in := bufio.NewReader(os.Stdin)
			if username == "" {
				username = prompt(in, "Username: ")
			}
			if password == "" {
				password = prompt(in, "Password: ")
			}
			if username == "" || password == "" {
				return errors.New("username and password are required")
			}

			token, err := a.api.Login(cmd.Context(), username, password)
			if err != nil {
				if msg := api.Message(err); msg != "" {
					return fmt.Errorf("login failed: %s", msg)
				}
				return err
			}
			if err := a.session.Set(token, a.api.BaseURL()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("signed in")+" to "+a.api.BaseURL())
			return nil
		}),
	}
	f := cmd.Flags()
	f.StringP("username", "u", "", "Backend username")
	f.String("password", "", "Backend password (or set PAPERDASH_PASSWORD; prompted when empty)")
	return cmd
}

func prompt(in *bufio.Reader, label string) string {
	fmt.Fprint(os.Stderr, label)
	line, _ := in.ReadString('\n')
	return strings.TrimSpace(line)
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			if err := a.session.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		}),
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user and token expiry",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			out := cmd.OutOrStdout()
			id := a.session.Identity()
			if id == nil {
				return errors.New("not signed in, run paperdash login")
			}
			saved, err := a.store.LoadToken()
			if err != nil {
				return err
			}
			subject := id.Subject
			if subject == "" {
				subject = "(opaque token)"
			}
			rows := [][]string{{"user", subject}}
			if saved != nil {
				rows = append(rows,
					[]string{"backend", saved.APIBase},
					[]string{"signed in", humanize.Time(saved.SavedAt)})
			}
			if id.ExpiresAt != nil {
				rows = append(rows, []string{"expires", humanize.Time(*id.ExpiresAt)})
			}
			printTable(out, []string{"", ""}, rows)
			return nil
		}),
	}
}
