package domain

import "errors"

// Location resolution failures.
var (
	ErrCapabilityUnavailable = errors.New("device location unavailable")
	ErrPermissionDenied      = errors.New("device location permission denied")
	ErrTimeout               = errors.New("device location timed out")
	ErrEmptyQuery            = errors.New("empty location query")
	ErrNoMatch               = errors.New("no matching location")
	ErrServiceError          = errors.New("upstream service error")
	ErrNetworkFailure        = errors.New("network failure")
)

// Dashboard input failures.
var (
	ErrUnknownAgent    = errors.New("unknown agent")
	ErrUnknownCategory = errors.New("unknown alert category")
	ErrNoLocation      = errors.New("location not resolved")
	ErrAlertNotFound   = errors.New("alert not found")
	ErrInvalidLocation = errors.New("coordinate out of range")
)

// Dispatch failures.
var (
	ErrShareUnavailable = errors.New("share unavailable")
	ErrEmptyAction      = errors.New("empty dispatch action")
)

// FetchFailedMessage is the banner shown when a poll cycle fails.
const FetchFailedMessage = "Unable to load weather data. Please check your connection."

// UserMessage converts an error into the string shown to the user. Unexpected
// errors get a generic message with no detail.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCapabilityUnavailable):
		return "Device location is not available. Please enter your location manually."
	case errors.Is(err, ErrTimeout):
		return "Could not get location in time. Please try again or enter it manually."
	case errors.Is(err, ErrPermissionDenied):
		return "Location access denied. Please enable it in settings or enter manually."
	case errors.Is(err, ErrEmptyQuery):
		return "Please enter a city, state, or zip code."
	case errors.Is(err, ErrNoMatch):
		return "Could not find that location. Please try again."
	case errors.Is(err, ErrServiceError), errors.Is(err, ErrNetworkFailure):
		return "Failed to fetch location data. Please check your connection."
	case errors.Is(err, ErrUnknownAgent):
		return "Unknown agent."
	case errors.Is(err, ErrUnknownCategory):
		return "Unknown alert category."
	case errors.Is(err, ErrNoLocation):
		return "Set a location first."
	case errors.Is(err, ErrAlertNotFound):
		return "That alert is no longer active."
	case errors.Is(err, ErrInvalidLocation):
		return "That location is out of range."
	case errors.Is(err, ErrShareUnavailable):
		return "Sharing is not available."
	case errors.Is(err, ErrEmptyAction):
		return "Please enter an action to dispatch."
	default:
		return "Something went wrong"
	}
}
