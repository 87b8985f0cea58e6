package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/buildinfo"
	"github.com/dmitrijs2005/tokenkeeper/internal/flagx"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"

	gs "github.com/dmitrijs2005/tokenkeeper/internal/server/grpc"
)

// ErrUsage is returned for an unknown command or missing arguments.
var ErrUsage = errors.New("usage error")

const usage = `Usage: tokenkeeper <command> [args] [flags]

Commands:
  migrate                 apply database migrations
  issue <userID>          issue an access/refresh token pair
  refresh [token]         rotate a refresh token
  verify-access [token]   verify an access token
  verify-refresh [token]  verify a refresh token
  revoke [token]          revoke a refresh token (logout)
  revoke-user <userID>    revoke every refresh token of a user
  purge                   delete expired refresh tokens
  serve                   run the gRPC endpoint and periodic purge
  health [service]        query the health of a running endpoint
  version                 print build information

Tokens not given as arguments are read from the terminal.`

// Usage returns the command summary.
func Usage() string { return usage }

type tokenPairOutput struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshTokenID   string    `json:"refresh_token_id"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type verificationOutput struct {
	Outcome   string         `json:"outcome"`
	Subject   string         `json:"subject,omitempty"`
	Issuer    string         `json:"issuer,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	TokenID   string         `json:"token_id,omitempty"`
	Claims    map[string]any `json:"claims,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Execute runs the command named by the first positional argument.
func (app *App) Execute(ctx context.Context, args []string) error {
	positional := flagx.Positional(args, config.ValueFlags())
	if len(positional) == 0 {
		return fmt.Errorf("%w: missing command\n\n%s", ErrUsage, usage)
	}

	cmd, rest := positional[0], positional[1:]
	switch cmd {
	case "migrate":
		if err := app.manager.RunMigrations(ctx); err != nil {
			return fmt.Errorf("migration error: %w", err)
		}
		fmt.Fprintln(app.out, "migrations applied")
		return nil

	case "issue":
		if len(rest) == 0 {
			return fmt.Errorf("%w: issue <userID>", ErrUsage)
		}
		pair, err := app.sessions.Issue(ctx, auth.AccessClaims{Subject: rest[0]})
		if err != nil {
			return err
		}
		return app.printPair(pair)

	case "refresh":
		token, err := app.tokenArg(rest, "Refresh token")
		if err != nil {
			return err
		}
		pair, err := app.sessions.Refresh(ctx, token)
		if err != nil {
			return err
		}
		return app.printPair(pair)

	case "verify-access":
		token, err := app.tokenArg(rest, "Access token")
		if err != nil {
			return err
		}
		claims, err := app.sessions.Authenticate(ctx, token)
		out := verificationOutput{Outcome: auth.OutcomeOf(err).String()}
		if err == nil {
			out.Subject = claims.Subject
			out.Issuer = claims.Issuer
			out.ExpiresAt = &claims.ExpiresAt
			out.Claims = claims.Extra
		} else {
			out.Error = err.Error()
		}
		if perr := app.printJSON(out); perr != nil {
			return perr
		}
		return err

	case "verify-refresh":
		token, err := app.tokenArg(rest, "Refresh token")
		if err != nil {
			return err
		}
		verified, err := app.gateway.VerifyRefreshToken(token)
		out := verificationOutput{Outcome: auth.OutcomeOf(err).String()}
		if err == nil {
			out.Subject = verified.UserID
			out.TokenID = verified.TokenID
		} else {
			out.Error = err.Error()
		}
		if perr := app.printJSON(out); perr != nil {
			return perr
		}
		return err

	case "revoke":
		token, err := app.tokenArg(rest, "Refresh token")
		if err != nil {
			return err
		}
		if err := app.sessions.Revoke(ctx, token); err != nil {
			return err
		}
		fmt.Fprintln(app.out, "revoked")
		return nil

	case "revoke-user":
		if len(rest) == 0 {
			return fmt.Errorf("%w: revoke-user <userID>", ErrUsage)
		}
		n, err := app.sessions.RevokeAll(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(app.out, "revoked %d token(s)\n", n)
		return nil

	case "purge":
		n, err := app.sessions.PurgeExpired(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(app.out, "deleted %d expired token(s)\n", n)
		return nil

	case "serve":
		app.Serve(ctx)
		return nil

	case "health":
		service := ""
		if len(rest) > 0 {
			service = rest[0]
		}
		c, err := gs.NewClient(app.config.EndpointAddrGRPC, "")
		if err != nil {
			return fmt.Errorf("error connecting to %s: %w", app.config.EndpointAddrGRPC, err)
		}
		defer c.Close()

		st, err := c.Check(ctx, service)
		if err != nil {
			return err
		}
		fmt.Fprintln(app.out, st)
		return nil

	case "version":
		buildinfo.PrintBuildData(app.out)
		return nil

	case "help":
		fmt.Fprintln(app.out, usage)
		return nil

	default:
		return fmt.Errorf("%w: unknown command %q\n\n%s", ErrUsage, cmd, usage)
	}
}

func (app *App) tokenArg(rest []string, prompt string) (string, error) {
	if len(rest) > 0 {
		return rest[0], nil
	}
	token, err := ReadSecret(app.in, prompt, app.out)
	if err != nil {
		return "", fmt.Errorf("error reading token: %w", err)
	}
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrUsage)
	}
	return token, nil
}

func (app *App) printPair(p *services.TokenPair) error {
	return app.printJSON(tokenPairOutput{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		RefreshTokenID:   p.RefreshTokenID,
		RefreshExpiresAt: p.RefreshExpiresAt,
	})
}

func (app *App) printJSON(v any) error {
	enc := json.NewEncoder(app.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
