/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/furniro/apiserver/config"
	"github.com/furniro/apiserver/internal/server"
	"github.com/furniro/apiserver/internal/services"
	"github.com/furniro/apiserver/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	adminEmail    string
	adminName     string
	adminPassword string
	adminPromote  bool
)

// adminCmd groups account maintenance commands.
var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage admin accounts",
}

// adminCreateCmd creates the first admin. With the admin API protected it
// is the only way to get one.
var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an admin account",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadRuntime()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		return createAdmin(cmd.Context(), cfg, log, services.SignupInput{
			Email:    adminEmail,
			Name:     adminName,
			Password: adminPassword,
			Role:     types.RoleAdmin,
		}, adminPromote)
	},
}

func createAdmin(ctx context.Context, cfg config.Config, log *zap.Logger, in services.SignupInput, promote bool) error {
	if strings.EqualFold(cfg.Database.Driver, server.DriverMemory) {
		return errors.New("admin create needs a persistent database, DB_DRIVER=memory only lives inside the server process")
	}

	stores, err := server.OpenStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = stores.Close() }()

	authService := services.NewAuthService(stores.Users, services.NewBcryptHasher(cfg.Auth.BcryptCost), nil, log)
	userService := services.NewUserService(stores.Users, nil, log)
	return bootstrapAdmin(ctx, authService, userService, log, in, promote)
}

// bootstrapAdmin signs up an admin account. An existing account is only
// promoted when promote is set.
func bootstrapAdmin(
	ctx context.Context,
	authService *services.AuthService,
	userService *services.UserService,
	log *zap.Logger,
	in services.SignupInput,
	promote bool,
) error {
	user, err := authService.Signup(ctx, in)
	if errors.Is(err, services.ErrEmailTaken) {
		if !promote {
			return fmt.Errorf("%s is already registered, rerun with --promote to grant it the admin role", in.Email)
		}
		if err := userService.MakeAdmin(ctx, in.Email); err != nil {
			return err
		}
		log.Info("existing account promoted to admin", zap.String("email", in.Email))
		return nil
	}
	if err != nil {
		return err
	}

	log.Info("admin created", zap.Int("id", user.ID), zap.String("email", user.Email))
	return nil
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminCreateCmd)

	adminCreateCmd.Flags().StringVar(&adminEmail, "email", "", "Admin email")
	adminCreateCmd.Flags().StringVar(&adminName, "name", "", "Admin display name")
	adminCreateCmd.Flags().StringVar(&adminPassword, "password", "", "Admin password")
	adminCreateCmd.Flags().BoolVar(&adminPromote, "promote", false, "Promote the account if the email is already registered")
	_ = adminCreateCmd.MarkFlagRequired("email")
	_ = adminCreateCmd.MarkFlagRequired("name")
	_ = adminCreateCmd.MarkFlagRequired("password")
}
