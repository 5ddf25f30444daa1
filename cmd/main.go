// SPDX-License-Identifier: GPL-2.0
/*
 * Copyright (c) 2023 Oracle and/or its affiliates.
 * Copyright (c) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * ktlsws is free software; you can redistribute it and/or
 * modify it under the terms of the GNU General Public License as
 * published by the Free Software Foundation; version 2.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the GNU
 * General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program; if not, write to the Free Software
 * Foundation, Inc., 51 Franklin Street, Fifth Floor, Boston, MA
 * 02110-1301, USA.
 */

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dpeckett/ktlsws/client"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var c *client.Client

	hostFlag := &cli.StringFlag{
		Name:    "host",
		Aliases: []string{"H"},
		Usage:   "Host to connect to",
		Value:   "httpbin.org",
	}
	pathFlag := &cli.StringFlag{
		Name:    "path",
		Aliases: []string{"p"},
		Usage:   "Request path",
		Value:   "/get",
	}
	bodyFlag := &cli.StringFlag{
		Name:    "body",
		Aliases: []string{"d"},
		Usage:   "Request body (sent as application/json)",
	}

	request := func(ctx *cli.Context, method string) error {
		resp, err := c.Request(ctx.Context, method, ctx.String("host"), ctx.String("path"), []byte(ctx.String("body")))
		if err != nil {
			return err
		}

		printResponse(method, resp)
		return nil
	}

	app := &cli.App{
		Name:  "ktlsws",
		Usage: "An HTTPS/WebSocket client that offloads TLS to the kernel",
		Flags: []cli.Flag{
			&cli.GenericFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set the log level",
				Value:   fromLogLevel(slog.LevelInfo),
			},
			&cli.BoolFlag{
				Name:  "no-offload",
				Usage: "Disable kernel TLS, always use user-space TLS",
			},
		},
		Before: func(ctx *cli.Context) error {
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: (*slog.Level)(ctx.Generic("log-level").(*logLevelFlag)),
			}))

			c = client.New(client.Config{
				DisableOffload: ctx.Bool("no-offload"),
				Logger:         logger,
			})

			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Perform a GET request",
				Flags: []cli.Flag{hostFlag, pathFlag},
				Action: func(ctx *cli.Context) error {
					return request(ctx, "GET")
				},
			},
			{
				Name:  "post",
				Usage: "Perform a POST request",
				Flags: []cli.Flag{hostFlag, pathFlag, bodyFlag},
				Action: func(ctx *cli.Context) error {
					return request(ctx, "POST")
				},
			},
			{
				Name:  "put",
				Usage: "Perform a PUT request",
				Flags: []cli.Flag{hostFlag, pathFlag, bodyFlag},
				Action: func(ctx *cli.Context) error {
					return request(ctx, "PUT")
				},
			},
			{
				Name:  "patch",
				Usage: "Perform a PATCH request",
				Flags: []cli.Flag{hostFlag, pathFlag, bodyFlag},
				Action: func(ctx *cli.Context) error {
					return request(ctx, "PATCH")
				},
			},
			{
				Name:  "delete",
				Usage: "Perform a DELETE request",
				Flags: []cli.Flag{hostFlag, pathFlag},
				Action: func(ctx *cli.Context) error {
					return request(ctx, "DELETE")
				},
			},
			{
				Name:  "ws",
				Usage: "Send a message over a WebSocket connection and print the reply",
				Flags: []cli.Flag{
					hostFlag,
					pathFlag,
					&cli.StringFlag{
						Name:    "message",
						Aliases: []string{"m"},
						Usage:   "Text message to send",
						Value:   "Hello from ktlsws!",
					},
				},
				Action: func(ctx *cli.Context) error {
					return wsEcho(ctx.Context, c, ctx.String("host"), ctx.String("path"), ctx.String("message"))
				},
			},
			{
				Name:  "demo",
				Usage: "Run the full request demo against httpbin.org and a WebSocket echo server",
				Action: func(ctx *cli.Context) error {
					return demo(ctx.Context, c)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error("Failed to run application", "error", err)
		os.Exit(1)
	}
}

func printResponse(label string, resp []byte) {
	head, body := client.SplitResponse(resp)
	fmt.Printf("--- %s headers ---\n%s\n\n", label, head)

	if len(body) > 400 {
		body = body[:400]
	}
	fmt.Printf("--- %s body ---\n%s\n\n", label, body)
}

func wsEcho(ctx context.Context, c *client.Client, host, path, message string) error {
	ws, err := c.DialWebSocket(ctx, host, path)
	if err != nil {
		return fmt.Errorf("websocket connection failed: %w", err)
	}

	fmt.Printf("Sending: %s\n", message)
	if err := ws.SendText(message); err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}

	msg, err := ws.Receive()
	if err != nil {
		return fmt.Errorf("failed to receive: %w", err)
	}

	switch {
	case msg.Status != nil:
		fmt.Printf("Received close: %d %s\n", msg.Status.Code, msg.Status.Reason)
	default:
		fmt.Printf("Received %s: %s\n", msg.Type, msg.Data)
	}

	return ws.Close(1000, "")
}

func demo(ctx context.Context, c *client.Client) error {
	const host = "httpbin.org"

	steps := []struct {
		method string
		path   string
		body   string
	}{
		{method: "GET", path: "/get"},
		{method: "POST", path: "/post", body: `{"op":"create"}`},
		{method: "PUT", path: "/put", body: `{"op":"replace"}`},
		{method: "PATCH", path: "/patch", body: `{"op":"modify"}`},
		{method: "DELETE", path: "/delete"},
	}

	for _, step := range steps {
		resp, err := c.Request(ctx, step.method, host, step.path, []byte(step.body))
		if err != nil {
			return fmt.Errorf("%s %s failed: %w", step.method, step.path, err)
		}

		printResponse(step.method, resp)
	}

	return wsEcho(ctx, c, "ws.postman-echo.com", "/raw", "Hello from ktlsws!")
}

type logLevelFlag slog.Level

func fromLogLevel(l slog.Level) *logLevelFlag {
	f := logLevelFlag(l)
	return &f
}

func (f *logLevelFlag) Set(value string) error {
	return (*slog.Level)(f).UnmarshalText([]byte(value))
}

func (f *logLevelFlag) String() string {
	return (*slog.Level)(f).String()
}
