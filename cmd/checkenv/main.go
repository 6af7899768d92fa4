// Command checkenv verifies the environment before the API starts. It exits
// non-zero and lists every missing required variable, so a misconfigured
// deployment fails at once instead of one variable at a time.
package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/joho/godotenv"
)

type check struct {
	name     string
	required bool
	reason   string
}

func main() {
	_ = godotenv.Load()

	checks := []check{
		{name: "SYNAPSE_DATABASE_URL", required: true, reason: "PostgreSQL connection string"},
		{name: "REDIS_URL", required: true, reason: "Redis for unread counters and presence"},
		{name: "SYNAPSE_JWT_SECRET", required: true, reason: "signs socket and local auth tokens"},
		{name: "MEILI_URL", required: false, reason: "full-text search (falls back to SQL ILIKE)"},
		{name: "MINIO_ENDPOINT", required: false, reason: "avatar object storage"},
		{name: "SMTP_HOST", required: false, reason: "review notification mail"},
	}
	if os.Getenv("SYNAPSE_AUTH_MODE") == "supabase" {
		checks = append(checks,
			check{name: "SUPABASE_URL", required: true, reason: "Supabase project URL for token verification"},
			check{name: "SUPABASE_SERVICE_ROLE_KEY", required: true, reason: "Supabase service role key for token verification"},
		)
	}

	var missing []check
	for _, c := range checks {
		value := os.Getenv(c.name)
		switch {
		case value != "":
			fmt.Printf("ok       %s\n", c.name)
		case c.required:
			fmt.Printf("MISSING  %s (%s)\n", c.name, c.reason)
			missing = append(missing, c)
		default:
			fmt.Printf("unset    %s (%s)\n", c.name, c.reason)
		}
	}

	checkBinary("DOCX export", "pandoc")
	checkBinary("PDF export", "chromium-browser", "chromium")

	if len(missing) > 0 {
		fmt.Fprintf(os.Stderr, "\n%d required variable(s) missing\n", len(missing))
		os.Exit(1)
	}
	fmt.Println("\nenvironment ok")
}

func checkBinary(feature string, names ...string) {
	for _, name := range names {
		if _, err := exec.LookPath(name); err == nil {
			fmt.Printf("ok       %s binary\n", name)
			return
		}
	}
	fmt.Printf("unset    %s binary (%s disabled)\n", names[0], feature)
}
