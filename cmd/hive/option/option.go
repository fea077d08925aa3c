package option

import "os"

var JSONFormat *bool
var SortOutput *bool

var APIURL *string
var User *string

// Environment variables used when the matching flag is not set.
const (
	APIURLEnv   = "HIVE_API_URL"
	UserEnv     = "HIVE_API_USER"
	PasswordEnv = "HIVE_API_PASSWORD"
)

const DefaultAPIURL = "http://127.0.0.1:50051"

func GetJSONFormat() bool {
	if JSONFormat == nil {
		return false
	}
	return *JSONFormat
}

func GetSortOutput() bool {
	if SortOutput == nil {
		return true
	}
	return *SortOutput
}

func GetAPIURL() string {
	if APIURL != nil && *APIURL != "" {
		return *APIURL
	}
	if url := os.Getenv(APIURLEnv); url != "" {
		return url
	}
	return DefaultAPIURL
}

func GetUser() string {
	if User != nil && *User != "" {
		return *User
	}
	return os.Getenv(UserEnv)
}

// GetPassword is only read from the environment to keep it out of the shell history.
func GetPassword() string {
	return os.Getenv(PasswordEnv)
}
