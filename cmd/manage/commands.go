package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"flariki/internal/database"
	"flariki/internal/models"
	"flariki/internal/service"

	"github.com/rs/zerolog"
)

var errUsage = errors.New("invalid usage")

// execute runs one operator command against db and writes a human-readable result to out.
func execute(ctx context.Context, db *database.DB, args []string, out io.Writer, logger *zerolog.Logger) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "create-admin":
		return createAdmin(ctx, db, rest, out, logger)
	case "set-password":
		return setPassword(ctx, db, rest, out, logger)
	case "activate":
		return activate(ctx, db, rest, out, logger)
	case "reconcile":
		return reconcile(ctx, db, out, logger)
	case "seed-products":
		return seedProducts(ctx, db, rest, out, logger)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func createAdmin(ctx context.Context, db *database.DB, args []string, out io.Writer, logger *zerolog.Logger) error {
	fs := newFlagSet("create-admin", out)
	email := fs.String("email", "", "staff email")
	password := fs.String("password", "", "initial password")
	role := fs.String("role", string(models.RoleAdmin), "ADMIN or MANAGER")
	telegramID := fs.Int64("telegram-id", 0, "optional telegram id for notifications")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r := models.Role(strings.ToUpper(*role))
	if !r.IsStaff() {
		return fmt.Errorf("%w: role must be ADMIN or MANAGER", errUsage)
	}
	if strings.TrimSpace(*email) == "" {
		return fmt.Errorf("%w: -email is required", errUsage)
	}
	hash, err := service.HashPassword(*password)
	if err != nil {
		return err
	}

	user, err := db.CreateStaffUser(ctx, strings.TrimSpace(*email), hash, r, *telegramID)
	if errors.Is(err, database.ErrDuplicate) {
		return fmt.Errorf("user with email %s already exists", *email)
	}
	if err != nil {
		return err
	}

	logger.Info().Str("user_id", user.ID).Str("role", string(r)).Msg("staff user created")
	fmt.Fprintf(out, "created %s %s (%s)\n", r, *email, user.ID)
	return nil
}

func setPassword(ctx context.Context, db *database.DB, args []string, out io.Writer, logger *zerolog.Logger) error {
	fs := newFlagSet("set-password", out)
	email := fs.String("email", "", "staff email")
	password := fs.String("password", "", "new password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := db.GetUserByEmail(ctx, *email)
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("user %s not found", *email)
	}
	if err != nil {
		return err
	}
	hash, err := service.HashPassword(*password)
	if err != nil {
		return err
	}
	if err := db.SetPasswordHash(ctx, user.ID, hash); err != nil {
		return err
	}

	logger.Info().Str("user_id", user.ID).Msg("password updated")
	fmt.Fprintf(out, "password updated for %s\n", *email)
	return nil
}

func activate(ctx context.Context, db *database.DB, args []string, out io.Writer, logger *zerolog.Logger) error {
	fs := newFlagSet("activate", out)
	email := fs.String("email", "", "user email")
	telegramID := fs.Int64("telegram-id", 0, "user telegram id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		user *models.User
		err  error
	)
	switch {
	case *telegramID != 0:
		user, err = db.GetUserByTelegramID(ctx, *telegramID)
	case *email != "":
		user, err = db.GetUserByEmail(ctx, *email)
	default:
		return fmt.Errorf("%w: -email or -telegram-id is required", errUsage)
	}
	if errors.Is(err, database.ErrNotFound) {
		return errors.New("user not found")
	}
	if err != nil {
		return err
	}

	user, err = db.SetUserStatus(ctx, user.ID, models.UserActive, nil)
	if err != nil {
		return err
	}

	logger.Info().Str("user_id", user.ID).Msg("user activated")
	fmt.Fprintf(out, "activated %s\n", user.ID)
	return nil
}

func reconcile(ctx context.Context, db *database.DB, out io.Writer, logger *zerolog.Logger) error {
	ledger := service.NewLedgerService(db, db, nil, service.NewAuditor(db, logger), nil, logger)
	mismatches, err := ledger.Reconcile(ctx)
	if err != nil {
		return err
	}
	if len(mismatches) == 0 {
		fmt.Fprintln(out, "ledger is consistent")
		return nil
	}
	for _, m := range mismatches {
		fmt.Fprintf(out, "%s balance=%d ledger=%d\n", m.UserID, m.Balance, m.LedgerSum)
	}
	return fmt.Errorf("%d balances do not match the ledger", len(mismatches))
}
