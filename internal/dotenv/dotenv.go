package dotenv

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Load reads a .env file into the process environment. With no arguments it
// loads "./.env". A missing file is not an error: deployed bots usually run
// with plain process env and no .env at all.
func Load(filenames ...string) error {
	if err := godotenv.Load(filenames...); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}
