package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/park285/chessduel/internal/adapter/chesspresenter"
	"github.com/park285/chessduel/internal/chess"
	"github.com/park285/chessduel/internal/chessbuilder"
	appcfg "github.com/park285/chessduel/internal/config"
	"github.com/park285/chessduel/internal/controller"
	"github.com/park285/chessduel/internal/msgcat"
	"github.com/park285/chessduel/internal/obslog"
	"github.com/park285/chessduel/internal/record"
	"github.com/park285/chessduel/internal/relay"
)

const tickInterval = 50 * time.Millisecond

type gameSetup struct {
	seats     [2]controller.SeatKind
	variant   chess.Variant
	seed      int64
	base      time.Duration
	increment time.Duration
}

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv("logs/chess-duel.log"); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.Named("main")

	messages, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		log.Fatalf("messages error: %v", err)
	}
	formatter := chesspresenter.NewFormatter(messages)
	formatter.EnableColor(!color.NoColor)
	presenter := chesspresenter.NewPresenter(func(message string) error {
		_, err := fmt.Fprintln(os.Stdout, message)
		return err
	}, formatter)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := chessbuilder.OpenRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("result repository error: %v", err)
	}
	defer repo.Close()

	if len(os.Args) > 1 && os.Args[1] == "history" {
		limit := 10
		if len(os.Args) > 2 {
			if n, err := strconv.Atoi(os.Args[2]); err == nil && n > 0 {
				limit = n
			}
		}
		games, err := repo.Recent(ctx, limit)
		if err != nil {
			log.Fatalf("history error: %v", err)
		}
		presenter.ShowMessage(formatter.History(games))
		return
	}

	setup, err := localSetup(cfg)
	if err != nil {
		log.Fatalf("setup error: %v", err)
	}

	var client *relay.Client
	if cfg.Networked() {
		client, setup, err = joinRelay(ctx, cfg, setup, presenter, formatter)
		if err != nil {
			log.Fatalf("relay error: %v", err)
		}
		defer client.Close()
	}

	mode, err := chess.NewGameMode(setup.variant, setup.seed)
	if err != nil {
		log.Fatalf("variant error: %v", err)
	}
	board := chess.NewTimedBoard(mode, setup.base, setup.increment)

	var eng controller.MoveSource
	if setup.seats[chess.White] == controller.Engine || setup.seats[chess.Black] == controller.Engine {
		eng, err = chessbuilder.OpenEngine(ctx, cfg, mode, obslog.Named("engine"))
		if err != nil {
			log.Fatalf("engine error: %v", err)
		}
	}

	done := make(chan controller.Result, 1)
	ctrlCfg := controller.Config{
		Board:       board,
		White:       setup.seats[chess.White],
		Black:       setup.seats[chess.Black],
		Engine:      eng,
		Presenter:   presenter,
		Messages:    messages,
		EngineThink: cfg.EngineThink(),
		OnGameEnd:   func(r controller.Result) { done <- r },
	}
	if client != nil {
		ctrlCfg.Transport = client
	}
	ctrl, err := controller.New(ctrlCfg)
	if err != nil {
		log.Fatalf("controller error: %v", err)
	}
	defer ctrl.Close()

	logger.Info("game_started",
		zap.String("variant", string(setup.variant)),
		zap.Int64("seed", setup.seed),
		zap.Stringer("white", setup.seats[chess.White]),
		zap.Stringer("black", setup.seats[chess.Black]),
		zap.Duration("base", setup.base),
		zap.Duration("increment", setup.increment))

	started := time.Now()
	res, finished := runLoop(ctx, ctrl, presenter, formatter, perspective(setup.seats), done)
	if !finished {
		logger.Info("game_abandoned")
		return
	}
	_ = ctrl.Close()

	rec := record.BuildRecord(board,
		record.Outcome{Winner: res.Winner, Decisive: res.Decisive, Reason: res.Reason},
		record.Meta{
			White:     setup.seats[chess.White].String(),
			Black:     setup.seats[chess.Black].String(),
			StartedAt: started,
			EndedAt:   time.Now(),
		})
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := repo.SaveResult(saveCtx, rec); err != nil {
		logger.Error("game_save_failed", zap.String("id", rec.ID), zap.Error(err))
	}
	presenter.ShowMessage(formatter.Result(rec))
}

func localSetup(cfg *appcfg.AppConfig) (gameSetup, error) {
	white, err := controller.ParseSeat(cfg.WhiteSeat)
	if err != nil {
		return gameSetup{}, err
	}
	black, err := controller.ParseSeat(cfg.BlackSeat)
	if err != nil {
		return gameSetup{}, err
	}
	variant, err := chess.ParseVariant(cfg.Variant)
	if err != nil {
		return gameSetup{}, err
	}
	seed := cfg.Seed
	if variant == chess.VariantFischer && seed == 0 {
		seed = time.Now().UnixNano()
	}
	return gameSetup{
		seats:     [2]controller.SeatKind{chess.White: white, chess.Black: black},
		variant:   variant,
		seed:      seed,
		base:      cfg.BaseTime(),
		increment: cfg.Increment(),
	}, nil
}

// joinRelay proposes the local settings and adopts whatever the relay
// assigns: the host's time control, variant and seed, and a colour.
func joinRelay(ctx context.Context, cfg *appcfg.AppConfig, setup gameSetup, p *chesspresenter.Presenter, f *chesspresenter.Formatter) (*relay.Client, gameSetup, error) {
	local, localSeat := chess.White, setup.seats[chess.White]
	if localSeat == controller.Remote {
		local, localSeat = chess.Black, setup.seats[chess.Black]
	}

	code := cfg.MatchCode
	if code == "" {
		code = petname.Generate(2, "-")
	}
	client, err := relay.Dial(ctx, cfg.RelayURL, code)
	if err != nil {
		return nil, setup, err
	}
	proposal := relay.GameConfig{
		Color:            local.String(),
		TimeMinutes:      cfg.TimeMinutes,
		IncrementSeconds: cfg.IncrementSeconds,
		Variant:          string(setup.variant),
		Seed:             setup.seed,
	}
	if err := client.SendConfig(ctx, proposal); err != nil {
		_ = client.Close()
		return nil, setup, err
	}
	p.ShowMessage(f.Waiting(code))

	assigned, err := client.WaitForStart(ctx)
	if err != nil {
		_ = client.Close()
		return nil, setup, err
	}
	side, err := chess.ParseColor(assigned.Color)
	if err != nil {
		_ = client.Close()
		return nil, setup, err
	}
	variant, err := chess.ParseVariant(assigned.Variant)
	if err != nil {
		_ = client.Close()
		return nil, setup, err
	}

	setup.seats[side] = localSeat
	setup.seats[side.Opponent()] = controller.Remote
	setup.variant = variant
	setup.seed = assigned.Seed
	setup.base = time.Duration(assigned.TimeMinutes) * time.Minute
	setup.increment = time.Duration(assigned.IncrementSeconds) * time.Second
	p.ShowMessage(f.Started(side))
	return client, setup, nil
}

// perspective is the side the board is drawn for: the local human if any.
func perspective(seats [2]controller.SeatKind) chess.Color {
	if seats[chess.White] != controller.Human && seats[chess.Black] == controller.Human {
		return chess.Black
	}
	return chess.White
}

func runLoop(ctx context.Context, ctrl *controller.Controller, p *chesspresenter.Presenter, f *chesspresenter.Formatter, side chess.Color, done <-chan controller.Result) (controller.Result, bool) {
	lines := make(chan string)
	go readLines(os.Stdin, lines)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	board := ctrl.Board()
	draw := func() {
		p.Board(chesspresenter.BoardView{
			Board:       board,
			Selected:    ctrl.Selected(),
			Highlights:  ctrl.Highlights(),
			Perspective: side,
		}, "")
	}
	draw()
	plies := len(board.History())

	for {
		select {
		case <-ctx.Done():
			return controller.Result{}, false
		case res := <-done:
			return res, true
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			cmd, err := chesspresenter.ParseCommand(line)
			if err != nil {
				p.ShowMessage(err.Error())
				continue
			}
			switch cmd.Kind {
			case chesspresenter.CmdQuit:
				return controller.Result{}, false
			case chesspresenter.CmdHelp:
				p.ShowMessage(f.Help())
			case chesspresenter.CmdBoard:
				draw()
			case chesspresenter.CmdResign:
				ctrl.Resign()
			case chesspresenter.CmdCancel:
				ctrl.CancelPromotion()
				draw()
			case chesspresenter.CmdPromote:
				ctrl.ChoosePromotion(cmd.Promote)
			case chesspresenter.CmdClick, chesspresenter.CmdMove:
				for _, sq := range cmd.Squares {
					ctrl.Click(sq)
				}
				if cmd.Promote != chess.None && ctrl.State() == controller.PromotionWait {
					ctrl.ChoosePromotion(cmd.Promote)
				}
				if ctrl.State() == controller.PieceSelected {
					draw()
				}
			}
		case <-ticker.C:
			ctrl.Update()
		}

		if n := len(board.History()); n != plies {
			plies = n
			draw()
		}
	}
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		out <- sc.Text()
	}
}
