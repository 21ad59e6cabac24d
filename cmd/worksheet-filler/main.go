// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

// Command worksheet-filler writes answers onto worksheet PDFs. It can fill
// from a prepared answer file or an OpenAI-compatible model, inspect
// documents, and serve an upload front end.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
