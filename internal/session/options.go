package session

import "sort"

// SetOption sets a boolean option and notifies option update.
func (c *Context) SetOption(name string, value bool) {
	c.options[name] = value
	c.logger.Debug("set option", "name", name, "value", value)
	c.notifyKey(c.optionUpdateNotifier, name)
}

// GetOption returns the option value; unset options are false.
func (c *Context) GetOption(name string) bool {
	return c.options[name]
}

// SetProperty sets a string property and notifies property update.
func (c *Context) SetProperty(name, value string) {
	c.properties[name] = value
	c.notifyKey(c.propertyUpdateNotifier, name)
}

// GetProperty returns the property value; unset properties are empty.
func (c *Context) GetProperty(name string) string {
	return c.properties[name]
}

// OptionNames returns the names of all set options in sorted order.
func (c *Context) OptionNames() []string {
	names := make([]string, 0, len(c.options))
	for name := range c.options {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PropertyNames returns the names of all set properties in sorted order.
func (c *Context) PropertyNames() []string {
	names := make([]string, 0, len(c.properties))
	for name := range c.properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClearTransientOptions erases every transient option and property.
// It does not notify.
func (c *Context) ClearTransientOptions() {
	c.logger.Debug("clear transient options")
	for name := range c.options {
		if IsTransient(name) {
			c.logger.Debug("cleared option", "name", name)
			delete(c.options, name)
		}
	}
	for name := range c.properties {
		if IsTransient(name) {
			delete(c.properties, name)
		}
	}
}
