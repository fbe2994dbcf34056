package main

import (
	"context"
	"fmt"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/storage"
)

// openStorage opens the configured database and brings its schema up to date.
func openStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(settings.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// explainAuth turns connection failures into an operator-facing reconnect instruction.
func explainAuth(err error, env model.Environment) error {
	if !common.IsAuthError(err) {
		return err
	}
	return common.NewUserError(fmt.Sprintf(
		"QuickBooks %s connection needs to be re-authorized; obtain new tokens and run "+
			"`tally connection set --env %s --realm-id ... --access-token ... --refresh-token ...`",
		env, env), err)
}

// providerEnvironment returns the environment selected by --env or quickbooks.environment.
func providerEnvironment(flag string) (model.Environment, error) {
	if flag == "" {
		return settings.Environment, nil
	}
	env, err := model.ParseEnvironment(flag)
	if err != nil {
		return "", common.NewUserError("invalid --env", err)
	}
	return env, nil
}
