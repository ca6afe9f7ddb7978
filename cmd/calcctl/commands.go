package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"calcclient/internal/calc"
	"calcclient/internal/grpc"
	"calcclient/internal/history"
	"calcclient/internal/models"
	"calcclient/internal/render"
)

// signalContext отменяется по Ctrl+C
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// readLine спрашивает значение, если оно не передано флагом
func readLine(prompt, value string) string {
	if value != "" {
		return value
	}
	fmt.Fprint(os.Stderr, prompt)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	return strings.TrimSpace(line)
}

func newLoginCommand(get func() *app) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Войти в систему",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx, cancel := signalContext(cmd)
			defer cancel()

			username = readLine("Логин: ", username)
			password = readLine("Пароль: ", password)

			s, err := a.auth.Login(ctx, username, password)
			if err != nil {
				return err
			}
			fmt.Printf("Вы вошли как %s\n", s.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Логин")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Пароль")
	return cmd
}

func newRegisterCommand(get func() *app) *cobra.Command {
	var username, password, confirm string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Зарегистрироваться",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx, cancel := signalContext(cmd)
			defer cancel()

			username = readLine("Логин: ", username)
			password = readLine("Пароль: ", password)
			confirm = readLine("Подтверждение пароля: ", confirm)

			if err := a.auth.Register(ctx, username, password, confirm); err != nil {
				return err
			}
			fmt.Println("Регистрация прошла успешно. Теперь войдите: calcctl login")
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Логин")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Пароль")
	cmd.Flags().StringVar(&confirm, "confirm", "", "Подтверждение пароля")
	return cmd
}

func newLogoutCommand(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Выйти из системы",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := get().auth.Logout(); err != nil {
				return err
			}
			fmt.Println("Вы вышли из системы")
			return nil
		},
	}
}

func newWhoamiCommand(get func() *app) *cobra.Command {
	var showKeys bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Показать текущего пользователя",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if showKeys {
				keys, err := a.db.Keys()
				if err != nil {
					return err
				}
				fmt.Printf("Хранилище %s: %s\n", a.cfg.SessionDB, strings.Join(keys, ", "))
			}

			s := a.store.Get()
			if !s.Authenticated() {
				fmt.Println("Вы не вошли в систему")
				return nil
			}
			fmt.Printf("Пользователь: %s\n", s.Username)

			claims, err := a.store.Claims()
			if err != nil {
				fmt.Println(render.MutedStyle.Render("Данные токена недоступны: " + err.Error()))
				return nil
			}
			if claims.UserID != 0 {
				fmt.Printf("ID: %d\n", claims.UserID)
			}
			if left, ok := claims.ExpiresIn(time.Now()); ok {
				if left > 0 {
					fmt.Printf("Токен действует еще %s\n", left.Round(time.Second))
				} else {
					fmt.Println(render.ErrorStyle.Render("Срок действия токена истек"))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showKeys, "keys", false, "Показать ключи локального хранилища")
	return cmd
}

func newCalcCommand(get func() *app) *cobra.Command {
	var noWait, showHistory bool
	cmd := &cobra.Command{
		Use:     "calc <выражение>",
		Aliases: []string{"submit"},
		Short:   "Отправить выражение и дождаться результата",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx, cancel := signalContext(cmd)
			defer cancel()

			text := strings.Join(args, " ")
			if noWait {
				id, err := a.engine.Submit(ctx, text)
				if err != nil {
					return err
				}
				fmt.Println(id)
				return nil
			}

			engineCfg := a.cfg.Engine()
			if showHistory {
				engineCfg.OnTerminal = func(*models.Expression) {
					page, err := a.history.List(ctx, history.Query{Page: 1, PageSize: a.cfg.PageSize})
					if err != nil {
						printError(err)
						return
					}
					fmt.Print(render.History(page))
				}
			}
			engine := calc.NewEngine(a.client, a.store, engineCfg)

			h, err := engine.Start(ctx, text, func(u calc.Update) {
				switch {
				case u.State == calc.StateSubmitting:
					fmt.Printf("Отправка выражения %s...\n", text)
				case u.Expression != nil && u.State == calc.StateTracking:
					fmt.Printf("Выражение %s: %s (опрос %d)\n", u.Expression.ID, render.StatusBadge(u.Expression.Status), u.Attempt)
				}
			})
			if err != nil {
				return err
			}

			expr, err := h.Wait()
			if errors.Is(err, context.Canceled) {
				fmt.Printf("Отслеживание остановлено. Проверить позже: calcctl status %s\n", h.ExpressionID())
				return nil
			}
			if expr != nil {
				fmt.Print(render.Expression(expr))
			}
			if errors.Is(err, calc.ErrPollLimit) {
				fmt.Printf("Проверить позже: calcctl status %s\n", h.ExpressionID())
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Только отправить и вывести ID")
	cmd.Flags().BoolVar(&showHistory, "show-history", false, "После завершения показать первую страницу истории")
	return cmd
}

func newStatusCommand(get func() *app) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Показать состояние выражения",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx, cancel := signalContext(cmd)
			defer cancel()
			id := models.ID(args[0])

			expr, err := a.engine.Get(ctx, id)
			if err != nil {
				return err
			}
			if watch && !expr.Status.IsTerminal() {
				expr, err = a.engine.Track(ctx, id, func(u calc.Update) {
					if u.Expression != nil && u.State == calc.StateTracking {
						fmt.Printf("Статус: %s (опрос %d)\n", render.StatusBadge(u.Expression.Status), u.Attempt)
					}
				})
				if errors.Is(err, context.Canceled) {
					return nil
				}
				if expr == nil {
					return err
				}
			}
			fmt.Print(render.Expression(expr))
			return err
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Опрашивать до завершения")
	return cmd
}

func newTasksCommand(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks <id>",
		Short: "Показать задачи выражения",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			tasks, err := get().engine.Tasks(ctx, models.ID(args[0]))
			if err != nil {
				return err
			}
			fmt.Print(render.Tasks(tasks))
			return nil
		},
	}
}

func newRecalcCommand(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "recalc <id>",
		Short: "Вычислить выражение заново",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			if err := get().engine.Recalculate(ctx, models.ID(args[0])); err != nil {
				return err
			}
			fmt.Printf("Выражение %s отправлено на пересчет\n", args[0])
			return nil
		},
	}
}

func newHistoryCommand(get func() *app) *cobra.Command {
	var page, size int
	var from, to, status string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "История вычислений",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx, cancel := signalContext(cmd)
			defer cancel()

			q := history.Query{Page: page, PageSize: size, Filters: history.Filters{Status: models.ParseStatus(status)}}
			if q.PageSize == 0 {
				q.PageSize = a.cfg.PageSize
			}
			var err error
			if q.Filters.DateFrom, err = parseDate(from); err != nil {
				return err
			}
			if q.Filters.DateTo, err = parseDate(to); err != nil {
				return err
			}

			p, err := a.history.List(ctx, q)
			if err != nil {
				return err
			}
			models.SortNewestFirst(p.Items)
			fmt.Print(render.History(p))
			if p.HasNext() {
				fmt.Println(render.MutedStyle.Render(fmt.Sprintf("Следующая страница: calcctl history --page %d", p.Page+1)))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Номер страницы")
	cmd.Flags().IntVar(&size, "size", 0, "Размер страницы")
	cmd.Flags().StringVar(&from, "from", "", "Начальная дата (ГГГГ-ММ-ДД)")
	cmd.Flags().StringVar(&to, "to", "", "Конечная дата (ГГГГ-ММ-ДД)")
	cmd.Flags().StringVar(&status, "status", "all", "Статус: all, pending, processing, completed, error")
	return cmd
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("некорректная дата %q, ожидается ГГГГ-ММ-ДД", value)
	}
	return t, nil
}

func newHealthCommand(get func() *app) *cobra.Command {
	var service string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Проверить доступность оркестратора по gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			h, err := grpc.Check(cmd.Context(), a.cfg.GRPCAddr, service)
			if err != nil {
				return err
			}
			badge := render.ResultStyle.Render(h.Status)
			if !h.Serving() {
				badge = render.ErrorStyle.Render(h.Status)
			}
			fmt.Printf("%s: %s (%s)\n", h.Address, badge, h.Latency.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVar(&service, "service", grpc.ServiceName, "Имя сервиса в health-протоколе")
	return cmd
}
