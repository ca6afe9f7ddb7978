package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"calcclient/internal/api"
	"calcclient/internal/auth"
	"calcclient/internal/calc"
	"calcclient/internal/config"
	"calcclient/internal/database"
	"calcclient/internal/history"
	"calcclient/internal/render"
	"calcclient/internal/session"
)

// app зависимости, общие для всех команд
type app struct {
	cfg     config.Config
	db      *database.DB
	store   *session.Store
	client  *api.Client
	auth    *auth.Controller
	engine  *calc.Engine
	history *history.Service
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	db, err := database.Open(cfg.SessionDB)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия хранилища сессии: %w", err)
	}

	store, err := session.NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	client, err := api.NewClient(cfg.Client(), store)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		db:      db,
		store:   store,
		client:  client,
		auth:    auth.NewController(client, store),
		engine:  calc.NewEngine(client, store, cfg.Engine()),
		history: history.NewService(client, store),
	}, nil
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

func main() {
	var verbose bool
	var a *app

	rootCmd := &cobra.Command{
		Use:           "calcctl",
		Short:         "Клиент сервиса распределенных вычислений",
		Long:          "calcctl отправляет арифметические выражения сервису вычислений и следит за их статусом.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				log.SetOutput(os.Stderr)
			} else {
				log.SetOutput(io.Discard)
			}
			var err error
			a, err = newApp()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.Close()
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Выводить журнал в stderr")

	get := func() *app { return a }
	rootCmd.AddCommand(newLoginCommand(get))
	rootCmd.AddCommand(newRegisterCommand(get))
	rootCmd.AddCommand(newLogoutCommand(get))
	rootCmd.AddCommand(newWhoamiCommand(get))
	rootCmd.AddCommand(newCalcCommand(get))
	rootCmd.AddCommand(newStatusCommand(get))
	rootCmd.AddCommand(newTasksCommand(get))
	rootCmd.AddCommand(newRecalcCommand(get))
	rootCmd.AddCommand(newHistoryCommand(get))
	rootCmd.AddCommand(newHealthCommand(get))

	if err := rootCmd.Execute(); err != nil {
		printError(err)
		if a != nil {
			a.Close()
		}
		os.Exit(1)
	}
}

func printError(err error) {
	fmt.Fprintln(os.Stderr, render.ErrorStyle.Render("Ошибка: ")+err.Error())
	if errors.Is(err, api.ErrUnauthenticated) {
		fmt.Fprintln(os.Stderr, render.MutedStyle.Render("Войдите в систему: calcctl login"))
	}
}
