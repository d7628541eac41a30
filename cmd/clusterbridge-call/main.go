// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Clusterbridge-call sends one request through a running clusterbridge
// and prints the response. It speaks the same socket protocol as a
// controller and is meant for debugging connectivity and for scripts.
//
//	clusterbridge-call --socket /run/bureau/clusterbridge.sock /api/v1/namespaces
//	clusterbridge-call -X POST -H 'Content-Type: application/json' --data-file pod.json /api/v1/namespaces/default/pods
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/clusterbridge/executor"
	"github.com/bureau-foundation/clusterbridge/lib/codec"
	"github.com/bureau-foundation/clusterbridge/lib/envelope"
	"github.com/bureau-foundation/clusterbridge/lib/version"
	"github.com/bureau-foundation/clusterbridge/transport"
)

// exitError carries a process exit status for results that are not
// errors of this tool, such as a Failure result.
type exitError struct {
	code    int
	message string
}

func (e *exitError) Error() string { return e.message }

func (e *exitError) ExitCode() int { return e.code }

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var coded interface{ ExitCode() int }
		if errors.As(err, &coded) {
			os.Exit(coded.ExitCode())
		}
		os.Exit(1)
	}
}

type options struct {
	socketPath string
	controller string
	method     string
	headers    []string
	data       string
	dataFile   string
	timeout    time.Duration
	include    bool
	diagnose   bool
}

func run(args []string, stdout io.Writer) error {
	var opts options
	var showVersion bool

	flagSet := pflag.NewFlagSet("clusterbridge-call", pflag.ContinueOnError)
	flagSet.StringVar(&opts.socketPath, "socket", "/run/bureau/clusterbridge.sock", "clusterbridge socket path")
	flagSet.StringVar(&opts.controller, "controller", "", "controller name (default: clusterbridge-call-<pid>)")
	flagSet.StringVarP(&opts.method, "request", "X", "GET", "HTTP method")
	flagSet.StringArrayVarP(&opts.headers, "header", "H", nil, "request header as 'Name: value' (repeatable)")
	flagSet.StringVarP(&opts.data, "data", "d", "", "request body")
	flagSet.StringVar(&opts.dataFile, "data-file", "", "read request body from file (- for stdin)")
	flagSet.DurationVar(&opts.timeout, "timeout", time.Minute, "overall timeout")
	flagSet.BoolVarP(&opts.include, "include", "i", false, "print status line and headers before the body")
	flagSet.BoolVar(&opts.diagnose, "diagnose", false, "print the raw result payload in CBOR diagnostic notation")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print("clusterbridge-call")
		return nil
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("usage: clusterbridge-call [flags] <uri>")
	}
	if opts.controller == "" {
		opts.controller = fmt.Sprintf("clusterbridge-call-%d", os.Getpid())
	}

	request, err := buildRequest(opts, flagSet.Arg(0))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	client, err := transport.Dial(ctx, opts.socketPath, opts.controller)
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.Call(ctx, request)
	if err != nil {
		return err
	}
	return printResult(stdout, result, opts)
}

func buildRequest(opts options, uri string) (executor.Request, error) {
	request := executor.Request{Method: strings.ToUpper(opts.method), URI: uri}

	for _, header := range opts.headers {
		name, value, found := strings.Cut(header, ":")
		name = strings.TrimSpace(name)
		if !found || name == "" {
			return executor.Request{}, fmt.Errorf("invalid header %q: want 'Name: value'", header)
		}
		request.Headers = append(request.Headers, envelope.HeaderField{
			Name:  name,
			Value: []byte(strings.TrimSpace(value)),
		})
	}

	switch {
	case opts.data != "" && opts.dataFile != "":
		return executor.Request{}, errors.New("--data and --data-file are mutually exclusive")
	case opts.data != "":
		request.Body = []byte(opts.data)
	case opts.dataFile == "-":
		body, err := io.ReadAll(os.Stdin)
		if err != nil {
			return executor.Request{}, fmt.Errorf("reading stdin: %w", err)
		}
		request.Body = body
	case opts.dataFile != "":
		body, err := os.ReadFile(opts.dataFile)
		if err != nil {
			return executor.Request{}, fmt.Errorf("reading body: %w", err)
		}
		request.Body = body
	}
	return request, nil
}

func printResult(stdout io.Writer, result executor.AsyncResult, opts options) error {
	if opts.diagnose {
		notation, err := codec.Diagnose(result.Payload)
		if err != nil {
			return fmt.Errorf("diagnosing payload: %w", err)
		}
		fmt.Fprintf(stdout, "%s %s\n", result.Kind, notation)
		return nil
	}

	if result.Kind == executor.ResultFailure {
		diagnostic, err := executor.DecodeDiagnostic(result.Payload)
		if err != nil {
			return err
		}
		message := fmt.Sprintf("%s: %s", diagnostic.Kind, diagnostic.Message)
		if diagnostic.URI != "" {
			message = fmt.Sprintf("%s %s: %s", diagnostic.Method, diagnostic.URI, message)
		}
		return &exitError{code: 2, message: message}
	}

	response, err := envelope.Decode(result.Payload)
	if err != nil {
		return err
	}
	if opts.include {
		fmt.Fprintf(stdout, "%d\n", response.StatusCode)
		for _, field := range response.Headers {
			fmt.Fprintf(stdout, "%s: %s\n", field.Name, field.Value)
		}
		fmt.Fprintln(stdout)
	}
	if _, err := stdout.Write(response.Body); err != nil {
		return err
	}
	if response.StatusCode >= 400 {
		return &exitError{code: 3, message: fmt.Sprintf("cluster returned status %d", response.StatusCode)}
	}
	return nil
}
