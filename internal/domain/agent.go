package domain

import (
	"fmt"
	"strings"
)

// Agent is a named notification profile.
type Agent string

const (
	AgentHail    Agent = "HAIL-M"
	AgentTornado Agent = "TORNADO-M"
	AgentFlood   Agent = "FLOOD-M"
	AgentHeat    Agent = "HEAT-M"
)

// UserActionActor is the actor recorded for user-initiated shares.
const UserActionActor = "User Action"

// AgentProfile describes an agent and the channels it notifies over.
type AgentProfile struct {
	Name        Agent    `json:"name"`
	Description string   `json:"description"`
	Channels    []string `json:"channels"`
}

var agentProfiles = map[Agent]AgentProfile{
	AgentHail:    {Name: AgentHail, Description: "Hail damage assessment", Channels: []string{"SMS", "Voice", "Email"}},
	AgentTornado: {Name: AgentTornado, Description: "Emergency tornado alerts", Channels: []string{"SMS", "Emergency Calls"}},
	AgentFlood:   {Name: AgentFlood, Description: "Flood warnings & recovery", Channels: []string{"WhatsApp", "Email"}},
	AgentHeat:    {Name: AgentHeat, Description: "Extreme heat wellness checks", Channels: []string{"Voice", "Mobile App"}},
}

// Agents returns every agent in display order.
func Agents() []Agent {
	return []Agent{AgentHail, AgentTornado, AgentFlood, AgentHeat}
}

// ParseAgent validates an agent name.
func ParseAgent(name string) (Agent, error) {
	a := Agent(name)
	if _, ok := agentProfiles[a]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAgent, name)
	}
	return a, nil
}

// Profile returns the agent's profile.
func (a Agent) Profile() AgentProfile {
	p := agentProfiles[a]
	p.Channels = append([]string(nil), p.Channels...)
	return p
}

// Profiles returns all agent profiles in display order.
func Profiles() []AgentProfile {
	out := make([]AgentProfile, 0, len(agentProfiles))
	for _, a := range Agents() {
		out = append(out, a.Profile())
	}
	return out
}

// AgentForCategory picks the agent for an auto-notification. Tornado wins over
// flood; everything else goes to hail.
func AgentForCategory(category string) Agent {
	switch {
	case strings.Contains(category, "Tornado"):
		return AgentTornado
	case strings.Contains(category, "Flood"):
		return AgentFlood
	default:
		return AgentHail
	}
}
