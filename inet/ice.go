package inet

import "fmt"

// The address of an ICE server.  A STUN server is just an address; a
// TURN server also carries credentials.
type ICEAddress struct {
	Address
	Turn     bool
	Username string
	Password string
}

func NewSTUN(host string, port uint16) ICEAddress {
	return ICEAddress{Address: Address{host, port}}
}

func NewTURN(host string, port uint16, user, pass string) ICEAddress {
	return ICEAddress{Address: Address{host, port}, Turn: true, Username: user, Password: pass}
}

// Renders the address as an ICE url.  Blank TURN credentials are rendered
// as the literal placeholders "username" and "password".
func (a ICEAddress) String() string {
	if !a.Turn {
		return fmt.Sprintf("stun://%v", a.Address)
	}

	user, pass := a.Username, a.Password
	if user == "" {
		user = "username"
	}
	if pass == "" {
		pass = "password"
	}
	return fmt.Sprintf("turn://%v:%v@%v", user, pass, a.Address)
}

// Returns the url understood by ICE agents (e.g. "stun:host:port"), without
// credentials.
func (a ICEAddress) URL() string {
	if a.Turn {
		return fmt.Sprintf("turn:%v", a.Address)
	}
	return fmt.Sprintf("stun:%v", a.Address)
}

func (a *ICEAddress) UnmarshalYAML(unmarshal func(interface{}) error) error {
	raw := struct {
		Host     string `yaml:"address"`
		Port     uint16 `yaml:"port"`
		Turn     bool   `yaml:"turn"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	}{Host: DefaultHost}

	if err := unmarshal(&raw); err != nil {
		return err
	}

	*a = ICEAddress{Address{raw.Host, raw.Port}, raw.Turn, raw.Username, raw.Password}
	return nil
}
