/*
 * MIT License
 *
 * Copyright (c) 2022-2025 Arsene Tochemey Gandote
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"

	"github.com/tochemey/projector"
	"github.com/tochemey/projector/config"
	"github.com/tochemey/projector/eventstore"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := cfg.Logger()

	documents, err := cfg.NewDocumentStore(ctx)
	if err != nil {
		logger.Fatal(err)
	}
	if err := documents.Connect(ctx); err != nil {
		logger.Fatal(err)
	}

	events := cfg.NewEventsStore(documents)
	if err := events.Connect(ctx); err != nil {
		logger.Fatal(err)
	}

	// seed a couple of accounts when running in memory
	if cfg.EventsStore == config.BackendMemory {
		if err := seed(ctx, events); err != nil {
			logger.Fatal(err)
		}
	}

	manager := projector.NewManager(documents, cfg.Options()...)
	balances, err := manager.CreateProjection("account_balances", events)
	if err != nil {
		logger.Fatal(err)
	}

	if err := balances.Connect(ctx); err != nil {
		logger.Fatal(err)
	}

	_ = balances.Init(func() projector.State {
		return projector.State{}
	})
	_ = balances.FromCategory("account")
	_ = balances.When(map[string]projector.Handler{
		"AccountCreated":  credit,
		"AccountCredited": credit,
		"AccountDebited": func(hctx *projector.HandlerContext, state projector.State, event *eventstore.Event) (projector.State, error) {
			amount, _ := event.Data()["amount"].(float64)
			balance, _ := state[hctx.StreamName()].(float64)
			state[hctx.StreamName()] = balance - amount
			if balance-amount < 0 {
				// keep track of the overdrafts in a dedicated stream
				if err := hctx.LinkTo("$overdrafts", event); err != nil {
					return nil, err
				}
			}
			return state, nil
		},
	})

	// stop the projection on interruption
	interruptSignal := make(chan os.Signal, 1)
	signal.Notify(interruptSignal, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-interruptSignal
		if err := balances.Stop(ctx); err != nil {
			logger.Error(err)
		}
	}()

	runErr := balances.Run(ctx, cfg.KeepRunning)
	if errors.Is(runErr, projector.ErrLockNotAcquired) {
		logger.Warn(runErr)
		runErr = nil
	}

	logger.Infof("balances: %v", balances.State())

	err = multierr.Combine(
		runErr,
		events.Disconnect(ctx),
		documents.Disconnect(ctx),
	)
	if err != nil {
		logger.Fatal(err)
	}
}

func credit(hctx *projector.HandlerContext, state projector.State, event *eventstore.Event) (projector.State, error) {
	amount, _ := event.Data()["amount"].(float64)
	balance, _ := state[hctx.StreamName()].(float64)
	state[hctx.StreamName()] = balance + amount
	return state, nil
}

func seed(ctx context.Context, events eventstore.EventsStore) error {
	accounts := map[string][][2]any{
		"account-1": {{"AccountCreated", 500.0}, {"AccountCredited", 250.0}},
		"account-2": {{"AccountCreated", 100.0}, {"AccountDebited", 150.0}},
	}

	for streamName, entries := range accounts {
		records := make([]*eventstore.Event, 0, len(entries))
		for _, entry := range entries {
			event, err := eventstore.NewEvent(entry[0].(string), map[string]any{"amount": entry[1]})
			if err != nil {
				return err
			}
			records = append(records, event)
		}

		if err := events.Create(ctx, streamName, records); err != nil && !errors.Is(err, eventstore.ErrStreamAlreadyExists) {
			return err
		}
	}
	return nil
}
