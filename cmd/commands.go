package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gennadis/apiclient/internal/api"
	"github.com/gennadis/apiclient/internal/client"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readPassword prompts without echo on a terminal and reads a line otherwise.
func readPassword(cmd *cobra.Command) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// restore loads the stored session so bearer endpoints have a token.
func restore() error {
	if err := current.auth.Restore(""); err != nil {
		return fmt.Errorf("%w: run signin first", api.ErrUnauthenticated)
	}
	return nil
}

// authorized runs call with the stored session and retries it once after a
// token refresh when the backend rejects the access token.
func authorized(ctx context.Context, call func() error) error {
	if err := restore(); err != nil {
		return err
	}
	err := call()
	if !api.IsUnauthorized(err) {
		return err
	}
	if rerr := current.auth.Refresh(ctx); rerr != nil {
		slog.Debug("token refresh after 401 failed", "error", rerr)
		return err
	}
	return call()
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"baseURL": current.http.BaseURL(),
				"headers": current.http.Headers(),
				"runtime": current.cfg.Runtime,
				"db":      current.cfg.DBPath,
			})
		},
	}
}

func requestCmd() *cobra.Command {
	var (
		data    string
		headers []string
		bearer  bool
	)
	cmd := &cobra.Command{
		Use:   "request METHOD PATH",
		Short: "Send a raw request through the shared client",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []client.RequestOption
			if data != "" {
				opts = append(opts, client.WithBody([]byte(data)))
			}
			for _, h := range headers {
				k, v, ok := strings.Cut(h, ":")
				if !ok {
					return fmt.Errorf("invalid header %q, want key:value", h)
				}
				opts = append(opts, client.WithHeader(strings.TrimSpace(k), strings.TrimSpace(v)))
			}
			if bearer {
				if err := restore(); err != nil {
					return err
				}
				opts = append(opts, client.WithBearerToken(current.auth.AccessToken()))
			}

			req, err := current.http.NewRequest(cmd.Context(), strings.ToUpper(args[0]), args[1], opts...)
			if err != nil {
				return err
			}
			res, err := current.http.Do(req)
			if err != nil {
				return err
			}
			defer res.Body.Close()

			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s -> %s\n", req.Method, req.URL, res.Status)
			_, err = io.Copy(cmd.OutOrStdout(), res.Body)
			return err
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "request body")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra header key:value, overrides defaults")
	cmd.Flags().BoolVar(&bearer, "auth", false, "send the stored access token")
	return cmd
}

func signUpCmd() *cobra.Command {
	var in api.SignUpRequest
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Register an account and store its tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}
			in.Password = password
			user, err := current.auth.SignUp(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), user)
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "account email")
	cmd.Flags().StringVar(&in.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&in.LastName, "last-name", "", "last name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func signInCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in and store the token pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}
			user, err := current.auth.SignIn(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), user)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func signOutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Forget the stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := restore(); err != nil {
				return nil
			}
			return current.auth.SignOut()
		},
	}
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := restore(); err != nil {
				return err
			}
			if err := current.auth.Refresh(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "access token refreshed")
			return nil
		},
	}
}

func usersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List all users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var users []api.User
			err := authorized(cmd.Context(), func() (err error) {
				users, err = current.api.Users(cmd.Context())
				return err
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), users)
		},
	}
}

func userCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "user ID",
		Short: "Show one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id %q: %w", args[0], err)
			}
			var user *api.User
			err = authorized(cmd.Context(), func() (err error) {
				user, err = current.api.User(cmd.Context(), id)
				return err
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), user)
		},
	}
}

func updateCmd() *cobra.Command {
	var in api.UserUpdateRequest
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Update a user's profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id %q: %w", args[0], err)
			}
			in.ID = id
			var user *api.User
			err = authorized(cmd.Context(), func() (err error) {
				user, err = current.api.UpdateUser(cmd.Context(), in)
				return err
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), user)
		},
	}
	cmd.Flags().StringVar(&in.FirstName, "first-name", "", "new first name")
	cmd.Flags().StringVar(&in.LastName, "last-name", "", "new last name")
	return cmd
}

func secretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "secret",
		Short: "Fetch the token-protected test resource",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var s string
			err := authorized(cmd.Context(), func() (err error) {
				s, err = current.api.Secret(cmd.Context())
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s)
			return nil
		},
	}
}

func notSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "not-secret",
		Short: "Fetch the public test resource",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := current.api.NotSecret(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s)
			return nil
		},
	}
}
