package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/pathway/internal/catalog"
	"github.com/kalambet/pathway/internal/config"
	"github.com/kalambet/pathway/internal/identity"
	"github.com/kalambet/pathway/internal/profile"
)

type authView struct {
	Token string         `json:"token"`
	User  *identity.User `json:"user"`
}

type sessionView struct {
	State   string           `json:"state"`
	User    *identity.User   `json:"user"`
	Profile *profile.Profile `json:"profile"`
}

type quizView struct {
	Answers        map[string]string `json:"answers"`
	Submitted      bool              `json:"submitted"`
	Recommendation []string          `json:"recommendation"`
}

func describeSession(s sessionView) string {
	if s.User == nil {
		return s.State
	}
	return fmt.Sprintf("%s as %s", s.State, s.User.Email)
}

// --- auth ---

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Sign up, sign in or sign out",
}

var authSignUpCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and sign in",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCredentials(cmd, "/auth/signup", "Signed up as %s")
	},
}

var authSignInCmd = &cobra.Command{
	Use:   "signin",
	Short: "Sign in to an existing account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCredentials(cmd, "/auth/signin", "Signed in as %s")
	},
}

var authSignOutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Sign out and forget the saved session",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := signOut(cmd.Context(), client); err != nil {
			return err
		}
		printSuccess("Signed out")
		return nil
	},
}

func runCredentials(cmd *cobra.Command, path, done string) error {
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	u, err := authenticate(cmd.Context(), client, path, email, password)
	if err != nil {
		return err
	}
	printSuccess(done, u.Email)
	return nil
}

// authenticate posts credentials to path and saves the returned token.
func authenticate(ctx context.Context, c *apiClient, path, email, password string) (*identity.User, error) {
	resp, err := c.post(ctx, path, map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	var result authView
	if err := decodeJSON(resp, &result); err != nil {
		return nil, err
	}
	if result.Token == "" || result.User == nil {
		return nil, fmt.Errorf("server returned no session")
	}
	if err := c.saveToken(result.Token); err != nil {
		return nil, fmt.Errorf("saving session token: %w", err)
	}
	return result.User, nil
}

// signOut ends the server session and removes the saved token. The token is
// removed even when the server no longer accepts it.
func signOut(ctx context.Context, c *apiClient) error {
	if c.token == "" {
		return fmt.Errorf("not signed in")
	}
	resp, err := c.post(ctx, "/auth/signout", nil)
	if err != nil {
		return err
	}
	var result map[string]string
	decodeErr := decodeJSON(resp, &result)
	if err := c.clearToken(); err != nil {
		return fmt.Errorf("removing session token: %w", err)
	}
	return decodeErr
}

func init() {
	for _, c := range []*cobra.Command{authSignUpCmd, authSignInCmd} {
		c.Flags().String("email", "", "account email")
		c.Flags().String("password", "", "account password")
		c.MarkFlagRequired("email")
		c.MarkFlagRequired("password")
	}
	authCmd.AddCommand(authSignUpCmd)
	authCmd.AddCommand(authSignInCmd)
	authCmd.AddCommand(authSignOutCmd)
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or edit the signed-in student's profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current profile as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/profile")
		if err != nil {
			return err
		}

		var p profile.Profile
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}
		return printJSON(os.Stdout, p)
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a profile field (name, grade or interests)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.patch(cmd.Context(), "/profile", map[string]any{key: value})
		if err != nil {
			return err
		}

		var p profile.Profile
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetCmd)
}

// --- quiz ---

var quizCmd = &cobra.Command{
	Use:   "quiz",
	Short: "Take the stream quiz",
}

var quizQuestionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "List quiz questions and their options",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/quiz/questions")
		if err != nil {
			return err
		}
		var questions []catalog.Question
		if err := decodeJSON(resp, &questions); err != nil {
			return err
		}
		printQuestions(os.Stdout, questions)
		return nil
	},
}

var quizShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show recorded answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/quiz")
		if err != nil {
			return err
		}
		var q quizView
		if err := decodeJSON(resp, &q); err != nil {
			return err
		}
		return printJSON(os.Stdout, q)
	},
}

var quizAnswerCmd = &cobra.Command{
	Use:   "answer <question> <option>",
	Short: "Answer one question, e.g. pathway quiz answer q1 o2",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		q, err := answer(cmd.Context(), client, args[0], args[1])
		if err != nil {
			return err
		}
		printSuccess("Recorded %s = %s (%d answered)", args[0], args[1], len(q.Answers))
		return nil
	},
}

var quizSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Score the answers and save the recommendation",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		printStep("Scoring answers...")
		streams, err := submit(cmd.Context(), client)
		if err != nil {
			return err
		}
		if len(streams) == 0 {
			printWarning("No questions were answered, so there is no recommendation yet.")
			return nil
		}
		printSuccess("Quiz saved")
		printStreams(os.Stdout, streams)
		return nil
	},
}

var quizResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear local answers to retake the quiz",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/quiz/reset", nil)
		if err != nil {
			return err
		}
		var q quizView
		if err := decodeJSON(resp, &q); err != nil {
			return err
		}
		printSuccess("Quiz reset")
		return nil
	},
}

func answer(ctx context.Context, c *apiClient, question, option string) (quizView, error) {
	var q quizView
	resp, err := c.put(ctx, "/quiz/answers/"+url.PathEscape(question), map[string]string{"option": option})
	if err != nil {
		return q, err
	}
	err = decodeJSON(resp, &q)
	return q, err
}

func submit(ctx context.Context, c *apiClient) ([]catalog.Category, error) {
	resp, err := c.post(ctx, "/quiz/submit", nil)
	if err != nil {
		return nil, err
	}
	var result struct {
		Streams []catalog.Category `json:"streams"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return nil, err
	}
	return result.Streams, nil
}

func init() {
	quizCmd.AddCommand(quizQuestionsCmd)
	quizCmd.AddCommand(quizShowCmd)
	quizCmd.AddCommand(quizAnswerCmd)
	quizCmd.AddCommand(quizSubmitCmd)
	quizCmd.AddCommand(quizResetCmd)
}

// --- streams ---

var streamsCmd = &cobra.Command{
	Use:   "streams",
	Short: "Browse the available streams",
}

var streamsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all streams",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/streams")
		if err != nil {
			return err
		}
		var streams []catalog.Category
		if err := decodeJSON(resp, &streams); err != nil {
			return err
		}
		printStreams(os.Stdout, streams)
		return nil
	},
}

var streamsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single stream",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/streams/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var c catalog.Category
		if err := decodeJSON(resp, &c); err != nil {
			return err
		}
		return printJSON(os.Stdout, c)
	},
}

func init() {
	streamsCmd.AddCommand(streamsListCmd)
	streamsCmd.AddCommand(streamsShowCmd)
}

// --- recommendations ---

var recommendationsCmd = &cobra.Command{
	Use:   "recommendations",
	Short: "Show the top recommended streams from the last quiz",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/recommendations?limit=%d", limit))
		if err != nil {
			return err
		}
		var result struct {
			HasResult bool               `json:"has_result"`
			Streams   []catalog.Category `json:"streams"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if !result.HasResult {
			fmt.Println("No recommendation yet. Take the quiz with: pathway quiz questions")
			return nil
		}
		printStreams(os.Stdout, result.Streams)
		return nil
	},
}

func init() {
	recommendationsCmd.Flags().Int("limit", 3, "maximum number of streams to show")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Restore the default for a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
