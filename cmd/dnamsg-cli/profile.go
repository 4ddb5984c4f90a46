// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"encoding/json"
	"net/url"

	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Fetch and update profiles",
}

var (
	profileFP          string
	profileDisplayName string
	profileBio         string
	profileTelegram    string
	profileX           string
	profileGitHub      string
)

var profileGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Fetch a profile by fingerprint (empty fetches the loaded identity's own)",
	RunE:  runProfileGet,
}

var profileUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update the loaded identity's own profile",
	RunE:  runProfileUpdate,
}

func init() {
	profileGetCmd.Flags().StringVar(&profileFP, "fingerprint", "", "fingerprint to fetch, empty for self")

	profileUpdateCmd.Flags().StringVar(&profileDisplayName, "display-name", "", "display name")
	profileUpdateCmd.Flags().StringVar(&profileBio, "bio", "", "short bio")
	profileUpdateCmd.Flags().StringVar(&profileTelegram, "telegram", "", "Telegram handle")
	profileUpdateCmd.Flags().StringVar(&profileX, "x", "", "X (Twitter) handle")
	profileUpdateCmd.Flags().StringVar(&profileGitHub, "github", "", "GitHub handle")

	profileCmd.AddCommand(profileGetCmd, profileUpdateCmd)
	rootCmd.AddCommand(profileCmd)
}

func runProfileGet(cmd *cobra.Command, args []string) error {
	path := "/api/v1/profile?" + url.Values{"fingerprint": {profileFP}}.Encode()
	result, err := newAPIClient().do("GET", path, nil)
	if err != nil {
		return err
	}
	printResult(json.RawMessage(result))
	return nil
}

func runProfileUpdate(cmd *cobra.Command, args []string) error {
	result, err := newAPIClient().do("POST", "/api/v1/profile/update", map[string]string{
		"DisplayName": profileDisplayName,
		"Bio":         profileBio,
		"Telegram":    profileTelegram,
		"X":           profileX,
		"GitHub":      profileGitHub,
	})
	if err != nil {
		return err
	}
	printResult(json.RawMessage(result))
	return nil
}
