package config

// TextractConfig shares the AWS credential variables with S3.
type TextractConfig struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
}

func (c *TextractConfig) applyEnv(str func(*string, string)) {
	str(&c.Region, "AWS_REGION")
	str(&c.Endpoint, "AWS_ENDPOINT")
	str(&c.AccessKey, "AWS_ACCESS_KEY")
	str(&c.SecretKey, "AWS_SECRET_KEY")
}
